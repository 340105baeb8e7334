// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"golang.org/x/crypto/curve25519"

	"github.com/saltline/driftwatch/pkg/logging"
	"github.com/saltline/driftwatch/services/identity"
	"github.com/saltline/driftwatch/services/identity/alerts"
	"github.com/saltline/driftwatch/services/identity/config"
	"github.com/saltline/driftwatch/services/identity/envelope"
	"github.com/saltline/driftwatch/services/identity/graph"
	"github.com/saltline/driftwatch/services/identity/middleware"
	"github.com/saltline/driftwatch/services/identity/risk"
	"github.com/saltline/driftwatch/services/identity/storage"
	"github.com/saltline/driftwatch/services/identity/storage/badger"
	"github.com/saltline/driftwatch/services/identity/telemetry"
	"github.com/saltline/driftwatch/services/identity/tracker"
)

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogging(cfg)
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("telemetry init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	// Badger holds vlog and table files open for the life of the
	// process; surface a low RLIMIT_NOFILE before it bites.
	limits := NewResourceLimitsChecker(DefaultResourceLimitsConfig()).Check()
	for _, w := range limits.Warnings {
		slog.Warn("resource preflight", slog.String("warning", w))
	}

	db, err := openServeStore(cfg.Storage)
	if err != nil {
		slog.Error("open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	store := storage.NewBadgerStore(db)
	engine := risk.NewEngine(cfg.Risk.Apply(risk.DefaultConfig()))
	trk := tracker.New(graph.New(store),
		tracker.WithEngine(engine),
		tracker.WithPageSize(cfg.Tracker.PageSize),
		tracker.WithLogger(slog.Default()),
	)

	handlers := identity.NewHandlers(trk, store).
		WithLogger(slog.Default()).
		WithAllowedOrigins(cfg.Server.CORSOrigins)

	var hub *alerts.Hub
	if cfg.Alerts.Enabled {
		hub = alerts.NewHub(alerts.Config{
			Threshold:  risk.ParseLevel(cfg.Alerts.Threshold),
			BufferSize: cfg.Alerts.BufferSize,
			QueueSize:  cfg.Alerts.QueueSize,
		}, slog.Default())
		go hub.Run(ctx)
		handlers = handlers.WithHub(hub)
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RPS:     cfg.RateLimit.RPS,
			Burst:   cfg.RateLimit.Burst,
			IdleTTL: cfg.RateLimit.IdleTTL.Std(),
		})
		go limiter.Run(ctx)
		handlers = handlers.WithRateLimiter(limiter)
	}

	if cfg.Server.EnvelopeKeyFile != "" {
		opener, err := loadOpener(cfg.Server.EnvelopeKeyFile)
		if err != nil {
			slog.Error("load envelope key", slog.String("error", err.Error()))
			os.Exit(1)
		}
		handlers = handlers.WithOpener(opener)
		slog.Info("sealed ingest enabled",
			slog.String("key_file", cfg.Server.EnvelopeKeyFile))
	}

	meter := otel.Meter("driftwatch/identity")
	metrics, err := telemetry.NewMetrics(meter)
	if err != nil {
		slog.Warn("metrics unavailable", slog.String("error", err.Error()))
		metrics = nil
	} else {
		handlers = handlers.WithMetrics(metrics)
		if hub != nil {
			if _, err := metrics.RegisterAlertsDropped(meter, hub.Dropped); err != nil {
				slog.Warn("alerts gauge unavailable", slog.String("error", err.Error()))
			}
		}
	}

	router, err := buildRouter(cfg, handlers, metrics)
	if err != nil {
		slog.Error("build router", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if watcher := watchConfig(ctx, trk, limiter, hub); watcher != nil {
		defer watcher.Stop()
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("driftwatch listening",
			slog.String("addr", srv.Addr),
			slog.String("auth_mode", cfg.Server.AuthMode),
			slog.Bool("alerts", cfg.Alerts.Enabled),
			slog.Bool("in_memory", cfg.Storage.InMemory),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		slog.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", slog.String("error", err.Error()))
	}
	slog.Info("driftwatch stopped")
}

// =============================================================================
// SERVICE WIRING
// =============================================================================

// setupLogging installs the process logger per the logging config and
// makes it the slog default so every component shares it.
func setupLogging(cfg *config.Config) *logging.Logger {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "driftwatch",
		JSON:    cfg.Logging.JSON,
		Quiet:   cfg.Logging.Quiet,
	})
	slog.SetDefault(logger.Slog())
	return logger
}

// openServeStore opens the long-lived service store: durable writes and
// the value-log GC loop, unless the config asks for in-memory mode.
func openServeStore(sc config.StorageConfig) (*badger.DB, error) {
	if sc.InMemory {
		cfg := badger.InMemoryConfig()
		cfg.Logger = slog.Default()
		return badger.OpenDB(cfg)
	}

	cfg := badger.DefaultConfig()
	cfg.Path = sc.Path
	cfg.SyncWrites = sc.SyncWrites
	cfg.GCInterval = sc.GCInterval.Std()
	cfg.Logger = slog.Default()
	return badger.OpenDB(cfg)
}

// buildRouter assembles the gin engine: health and metrics outside the
// versioned group, admission middleware on /v1 only.
func buildRouter(cfg *config.Config, handlers *identity.Handlers, metrics *telemetry.Metrics) (*gin.Engine, error) {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Server.CORSOrigins))
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	if metrics != nil {
		router.Use(middleware.MetricsMiddleware(metrics))
	}

	identity.RegisterHealthRoutes(router, handlers)
	if mh := telemetry.MetricsHandler(); mh != nil {
		router.GET("/metrics", gin.WrapH(mh))
	}

	auth, err := middleware.FromConfig(cfg.Server.AuthMode, cfg.Server.BearerToken, cfg.Server.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("configure admission: %w", err)
	}

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(auth))
	identity.RegisterRoutes(v1, handlers)

	return router, nil
}

// loadOpener reads the base64 X25519 private key and derives the public
// half; the opener seals the private key into its enclave.
func loadOpener(path string) (*envelope.Opener, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read envelope key: %w", err)
	}
	priv, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode envelope key: %w", err)
	}
	if len(priv) != envelope.KeySize {
		return nil, fmt.Errorf("envelope key is %d bytes, want %d", len(priv), envelope.KeySize)
	}

	pubSlice, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	var pub [envelope.KeySize]byte
	copy(pub[:], pubSlice)

	return envelope.NewOpener(pub, priv)
}

// watchConfig hot-reloads the dynamically-safe settings when --config
// points at a file. Listener and storage changes still need a restart.
func watchConfig(ctx context.Context, trk *tracker.Tracker, limiter *middleware.RateLimiter, hub *alerts.Hub) *config.Watcher {
	if cfgFile == "" {
		return nil
	}

	watcher, err := config.NewWatcher(cfgFile, func(next *config.Config) {
		trk.SetEngine(risk.NewEngine(next.Risk.Apply(risk.DefaultConfig())))
		if limiter != nil && next.RateLimit.Enabled {
			limiter.UpdateLimits(middleware.RateLimitConfig{
				RPS:     next.RateLimit.RPS,
				Burst:   next.RateLimit.Burst,
				IdleTTL: next.RateLimit.IdleTTL.Std(),
			})
		}
		if hub != nil && next.Alerts.Threshold != "" {
			hub.SetThreshold(risk.ParseLevel(next.Alerts.Threshold))
		}
	}, slog.Default())
	if err != nil {
		slog.Warn("config watch unavailable", slog.String("error", err.Error()))
		return nil
	}

	go watcher.Start(ctx)
	return watcher
}
