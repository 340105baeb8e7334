// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates the driftwatch daemon configuration.
//
// Configuration is layered: compiled defaults, then an optional YAML file,
// then DRIFTWATCH_* environment variables. The merged result is validated
// before use so a bad file fails at startup rather than mid-request.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saltline/driftwatch/services/identity/risk"
	"github.com/saltline/driftwatch/services/identity/telemetry"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Duration wraps time.Duration so YAML configs read "24h" instead of
// raw nanosecond integers.
type Duration time.Duration

// UnmarshalYAML accepts either a duration string ("90s", "24h") or an
// integer nanosecond count.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var ns int64
	if err := value.Decode(&ns); err != nil {
		return fmt.Errorf("duration must be a string or integer: %w", err)
	}
	*d = Duration(ns)
	return nil
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration for the driftwatch daemon.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Storage   StorageConfig    `yaml:"storage"`
	Tracker   TrackerConfig    `yaml:"tracker"`
	Risk      RiskConfig       `yaml:"risk"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	Alerts    AlertsConfig     `yaml:"alerts"`
	Backup    BackupConfig     `yaml:"backup"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls the HTTP listener and admission.
type ServerConfig struct {
	// Host is the bind address. Empty binds all interfaces.
	Host string `yaml:"host"`

	// Port is the HTTP listen port.
	Port int `yaml:"port" validate:"min=1,max=65535"`

	// CORSOrigins lists allowed browser origins. Empty allows none.
	CORSOrigins []string `yaml:"cors_origins"`

	// AuthMode selects request admission: "none", "token", or "jwt".
	AuthMode string `yaml:"auth_mode" validate:"oneof=none token jwt"`

	// BearerToken is the shared secret for token mode.
	BearerToken string `yaml:"bearer_token" validate:"required_if=AuthMode token"`

	// JWTSecret is the HS256 signing secret for jwt mode.
	JWTSecret string `yaml:"jwt_secret" validate:"required_if=AuthMode jwt"`

	// EnvelopeKeyFile points at the base64 X25519 private key for
	// sealed ingest payloads. Empty disables the sealed endpoint.
	EnvelopeKeyFile string `yaml:"envelope_key_file"`

	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// Addr returns the host:port bind address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig controls the Badger store.
type StorageConfig struct {
	// Path is the Badger data directory. Ignored when InMemory is set.
	Path string `yaml:"path"`

	// InMemory keeps the whole store in RAM. For tests and demos.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites fsyncs every write. Slower, survives power loss.
	SyncWrites bool `yaml:"sync_writes"`

	// GCInterval is how often value-log garbage collection runs.
	GCInterval Duration `yaml:"gc_interval"`
}

// TrackerConfig tunes identity tracking.
type TrackerConfig struct {
	// PageSize bounds each user page during full-graph projection.
	PageSize int `yaml:"page_size" validate:"omitempty,min=1,max=10000"`
}

// RiskConfig optionally overrides scoring windows and thresholds.
// Zero values keep the compiled defaults.
type RiskConfig struct {
	MultiIPWindow    Duration `yaml:"multi_ip_window"`
	MultiIPThreshold int      `yaml:"multi_ip_threshold" validate:"omitempty,min=1"`

	RapidIPWindow    Duration `yaml:"rapid_ip_window"`
	RapidIPThreshold int      `yaml:"rapid_ip_threshold" validate:"omitempty,min=1"`

	MultiFPWindow    Duration `yaml:"multi_fingerprint_window"`
	MultiFPThreshold int      `yaml:"multi_fingerprint_threshold" validate:"omitempty,min=1"`

	RapidChangeWindow Duration `yaml:"rapid_change_window"`
	RapidChangeGap    Duration `yaml:"rapid_change_gap"`

	HighThreshold   int `yaml:"high_threshold" validate:"omitempty,min=1,max=100"`
	MediumThreshold int `yaml:"medium_threshold" validate:"omitempty,min=1,max=100"`
}

// Apply overlays the non-zero overrides onto a base scoring config.
func (c RiskConfig) Apply(base risk.Config) risk.Config {
	if c.MultiIPWindow != 0 {
		base.MultiIPWindow = c.MultiIPWindow.Std()
	}
	if c.MultiIPThreshold != 0 {
		base.MultiIPThreshold = c.MultiIPThreshold
	}
	if c.RapidIPWindow != 0 {
		base.RapidIPWindow = c.RapidIPWindow.Std()
	}
	if c.RapidIPThreshold != 0 {
		base.RapidIPThreshold = c.RapidIPThreshold
	}
	if c.MultiFPWindow != 0 {
		base.MultiFPWindow = c.MultiFPWindow.Std()
	}
	if c.MultiFPThreshold != 0 {
		base.MultiFPThreshold = c.MultiFPThreshold
	}
	if c.RapidChangeWindow != 0 {
		base.RapidChangeWindow = c.RapidChangeWindow.Std()
	}
	if c.RapidChangeGap != 0 {
		base.RapidChangeGap = c.RapidChangeGap.Std()
	}
	if c.HighThreshold != 0 {
		base.HighThreshold = c.HighThreshold
	}
	if c.MediumThreshold != 0 {
		base.MediumThreshold = c.MediumThreshold
	}
	return base
}

// RateLimitConfig controls per-client request throttling.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps" validate:"omitempty,gt=0"`
	Burst   int     `yaml:"burst" validate:"omitempty,min=1"`

	// IdleTTL is how long an idle client keeps its limiter before
	// eviction.
	IdleTTL Duration `yaml:"idle_ttl"`
}

// AlertsConfig controls the realtime alert hub.
type AlertsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Threshold is the minimum risk level that produces an alert.
	Threshold string `yaml:"threshold" validate:"omitempty,oneof=LOW MEDIUM HIGH"`

	BufferSize int `yaml:"buffer_size" validate:"omitempty,min=1"`
	QueueSize  int `yaml:"queue_size" validate:"omitempty,min=1"`
}

// BackupConfig controls store backups.
type BackupConfig struct {
	// Bucket is the GCS bucket for uploaded backups. Empty keeps
	// backups local.
	Bucket string `yaml:"bucket"`

	// Prefix namespaces backup objects within the bucket.
	Prefix string `yaml:"prefix"`

	// CredentialsFile is a service-account JSON path. Empty uses
	// application default credentials.
	CredentialsFile string `yaml:"credentials_file"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`

	// Dir receives rotated log files in addition to stderr. Empty
	// logs to stderr only.
	Dir string `yaml:"dir"`

	Quiet bool `yaml:"quiet"`
}

// DefaultConfig returns the compiled defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            8480,
			AuthMode:        "none",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Storage: StorageConfig{
			Path:       "./data/driftwatch",
			GCInterval: Duration(5 * time.Minute),
		},
		Tracker: TrackerConfig{
			PageSize: 250,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     25,
			Burst:   50,
			IdleTTL: Duration(10 * time.Minute),
		},
		Alerts: AlertsConfig{
			Enabled:    true,
			Threshold:  string(risk.LevelMedium),
			BufferSize: 16,
			QueueSize:  64,
		},
		Telemetry: telemetry.DefaultConfig(),
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration.
//
// # Description
//
// Starts from DefaultConfig, overlays the YAML file at path when one is
// given, then applies DRIFTWATCH_* environment overrides, and finally
// validates the result.
//
// # Inputs
//
//   - path: YAML config file. Empty skips the file layer.
//
// # Outputs
//
//   - *Config: The merged, validated configuration.
//   - error: Non-nil on read, parse, or validation failure.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnv overlays DRIFTWATCH_* environment variables onto cfg.
func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnvOr("DRIFTWATCH_HOST", cfg.Server.Host)
	if port, err := strconv.Atoi(os.Getenv("DRIFTWATCH_PORT")); err == nil {
		cfg.Server.Port = port
	}
	cfg.Server.AuthMode = getEnvOr("DRIFTWATCH_AUTH_MODE", cfg.Server.AuthMode)
	cfg.Server.BearerToken = getEnvOr("DRIFTWATCH_BEARER_TOKEN", cfg.Server.BearerToken)
	cfg.Server.JWTSecret = getEnvOr("DRIFTWATCH_JWT_SECRET", cfg.Server.JWTSecret)
	cfg.Server.EnvelopeKeyFile = getEnvOr("DRIFTWATCH_ENVELOPE_KEY_FILE", cfg.Server.EnvelopeKeyFile)

	cfg.Storage.Path = getEnvOr("DRIFTWATCH_DATA_DIR", cfg.Storage.Path)
	if v := os.Getenv("DRIFTWATCH_IN_MEMORY"); v != "" {
		cfg.Storage.InMemory = v == "true" || v == "1"
	}

	cfg.Backup.Bucket = getEnvOr("DRIFTWATCH_GCS_BUCKET", cfg.Backup.Bucket)
	cfg.Backup.CredentialsFile = getEnvOr("GOOGLE_APPLICATION_CREDENTIALS", cfg.Backup.CredentialsFile)

	cfg.Logging.Level = getEnvOr("DRIFTWATCH_LOG_LEVEL", cfg.Logging.Level)
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
