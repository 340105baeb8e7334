// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ResourceChecker validates that system resources are sufficient before
// the service opens its store. Badger keeps every vlog and table file
// open, so a low descriptor limit fails late and confusingly; checking
// up front turns that into a startup warning.
//
// Implementations must be safe for concurrent use.
type ResourceChecker interface {
	// Check validates all resource limits and returns warnings.
	Check() ResourceLimits

	// CheckFDLimit checks only file descriptor limits.
	CheckFDLimit() (soft, hard uint64, warnings []string)

	// IsHealthy returns true if all limits are acceptable.
	IsHealthy() bool
}

// ResourceLimits is a snapshot of current system resource limits and
// any warnings about limits that may cause problems.
type ResourceLimits struct {
	// SoftFD is the current soft limit for file descriptors.
	SoftFD uint64

	// HardFD is the hard limit for file descriptors.
	HardFD uint64

	// RecommendedFD is the minimum recommended FD limit.
	RecommendedFD uint64

	// CurrentFDUsage is an estimate of currently used FDs.
	CurrentFDUsage int

	// Warnings lists any resource concerns.
	Warnings []string

	// CheckedAt is when this check was performed.
	CheckedAt time.Time
}

// HasWarnings returns true if there are any warnings.
func (r ResourceLimits) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// ResourceLimitsConfig configures resource limit checking.
type ResourceLimitsConfig struct {
	// MinRecommendedFD is the minimum recommended file descriptor limit.
	// Default: 1024
	MinRecommendedFD uint64

	// WarnAtFDPercent warns when FD usage exceeds this percentage.
	// Default: 80
	WarnAtFDPercent int
}

// DefaultResourceLimitsConfig returns thresholds suitable for a single
// service process with one Badger store.
func DefaultResourceLimitsConfig() ResourceLimitsConfig {
	return ResourceLimitsConfig{
		MinRecommendedFD: 1024,
		WarnAtFDPercent:  80,
	}
}

// DefaultResourceLimitsChecker implements ResourceChecker.
//
// # Use Cases
//
//   - Startup validation before opening the store
//   - Debugging "too many open files" errors
//
// # Assumptions
//
//   - RLIMIT_NOFILE is available
//   - Running on a Unix-like system (macOS, Linux)
//
// # Example
//
//	checker := NewResourceLimitsChecker(DefaultResourceLimitsConfig())
//	limits := checker.Check()
//	if limits.HasWarnings() {
//	    for _, w := range limits.Warnings {
//	        slog.Warn(w)
//	    }
//	}
type DefaultResourceLimitsChecker struct {
	config ResourceLimitsConfig
	mu     sync.RWMutex
}

// NewResourceLimitsChecker creates a checker with the specified
// configuration. Zero-valued thresholds fall back to the defaults.
func NewResourceLimitsChecker(config ResourceLimitsConfig) *DefaultResourceLimitsChecker {
	if config.MinRecommendedFD == 0 {
		config.MinRecommendedFD = 1024
	}
	if config.WarnAtFDPercent == 0 {
		config.WarnAtFDPercent = 80
	}

	return &DefaultResourceLimitsChecker{
		config: config,
	}
}

// Check validates all resource limits and returns a snapshot with
// warnings for any that are too low.
func (c *DefaultResourceLimitsChecker) Check() ResourceLimits {
	soft, hard, warnings := c.CheckFDLimit()

	limits := ResourceLimits{
		SoftFD:        soft,
		HardFD:        hard,
		RecommendedFD: c.config.MinRecommendedFD,
		Warnings:      warnings,
		CheckedAt:     time.Now(),
	}

	limits.CurrentFDUsage = c.estimateFDUsage()

	// Warn if usage is high relative to limit
	if soft > 0 && limits.CurrentFDUsage > 0 {
		usagePercent := (limits.CurrentFDUsage * 100) / int(soft)
		if usagePercent >= c.config.WarnAtFDPercent {
			limits.Warnings = append(limits.Warnings,
				fmt.Sprintf("File descriptor usage is %d%% (%d/%d). "+
					"Consider closing unused connections.",
					usagePercent, limits.CurrentFDUsage, soft))
		}
	}

	return limits
}

// CheckFDLimit retrieves the soft and hard file descriptor limits and
// warns when the soft limit is below the recommended minimum. The
// suggested ulimit never exceeds the hard limit.
func (c *DefaultResourceLimitsChecker) CheckFDLimit() (soft, hard uint64, warnings []string) {
	var rLimit unix.Rlimit
	err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		warnings = append(warnings,
			fmt.Sprintf("Unable to check file descriptor limits: %v", err))
		return 0, 0, warnings
	}

	soft = rLimit.Cur
	hard = rLimit.Max

	if soft < c.config.MinRecommendedFD {
		suggestion := c.config.MinRecommendedFD
		if suggestion > hard {
			suggestion = hard
		}

		warnings = append(warnings,
			fmt.Sprintf("File descriptor limit is %d (recommended: %d). "+
				"Run 'ulimit -n %d' to increase.",
				soft, c.config.MinRecommendedFD, suggestion))
	}

	return soft, hard, warnings
}

// IsHealthy returns true if resource limits are acceptable.
func (c *DefaultResourceLimitsChecker) IsHealthy() bool {
	limits := c.Check()
	return !limits.HasWarnings()
}

// estimateFDUsage counts open descriptors via /proc when available and
// falls back to a goroutine-based guess elsewhere (macOS has no /proc).
func (c *DefaultResourceLimitsChecker) estimateFDUsage() int {
	if entries, err := os.ReadDir("/proc/self/fd"); err == nil {
		// The ReadDir handle itself is counted; drop it.
		return len(entries) - 1
	}

	goroutines := runtime.NumGoroutine()
	baselineFDs := 10

	return goroutines + baselineFDs
}

// Compile-time interface check
var _ ResourceChecker = (*DefaultResourceLimitsChecker)(nil)
