// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package risk scores recent identity behavior for a single user.
//
// The engine is pure: it receives the IP and fingerprint observations the
// tracker already holds, applies fixed time windows, and returns a bounded
// score with its contributing factors. It performs no storage reads and
// never fails; a user with no recent activity scores zero.
//
// # Timestamps
//
// Every timestamp stored on identity nodes and edges uses TimestampLayout:
// UTC, millisecond precision, trailing Z. Constant precision keeps
// lexicographic comparison equivalent to chronological comparison, so
// window cutoffs are plain string compares.
package risk

import (
	"strings"
	"time"
)

// AlgorithmVersion is the version of the scoring algorithm. Increment when
// making changes that affect scores or levels.
const AlgorithmVersion = "1.0"

// TimestampLayout is the canonical encoding for timestamps in the identity
// graph. Comparisons rely on every stored value using exactly this shape.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Factor reasons reported in assessments.
const (
	ReasonMultipleIPs          = "Multiple IPs in 24 hours"
	ReasonRapidIPSwitching     = "Rapid IP switching"
	ReasonMultipleFingerprints = "Multiple fingerprints in 24 hours"
	ReasonRapidIdentityChanges = "Very rapid identity changes"
)

// Default factor windows.
const (
	DefaultMultiIPWindow     = 24 * time.Hour
	DefaultRapidIPWindow     = time.Hour
	DefaultMultiFPWindow     = 24 * time.Hour
	DefaultRapidChangeWindow = 5 * time.Minute
	DefaultRapidChangeGap    = time.Second
)

// Default factor thresholds. A count factor fires only when the observed
// count is strictly greater than its threshold.
const (
	DefaultMultiIPThreshold = 3
	DefaultRapidIPThreshold = 2
	DefaultMultiFPThreshold = 2
)

// Default per-occurrence weights and per-factor caps.
const (
	DefaultMultiIPWeight     = 10
	DefaultMultiIPCap        = 30
	DefaultRapidIPWeight     = 15
	DefaultRapidIPCap        = 40
	DefaultMultiFPWeight     = 15
	DefaultMultiFPCap        = 35
	DefaultRapidChangeWeight = 15
	DefaultRapidChangeCap    = 35
)

// Aggregate score bound and level thresholds.
const (
	MaxScore        = 100
	ThresholdHigh   = 70
	ThresholdMedium = 40
)

// Level represents the severity band of an assessment score.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// ParseLevel parses a string to Level. Unknown strings map to LevelHigh so
// a mistyped alert threshold fails quiet rather than noisy.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "low":
		return LevelLow
	case "medium":
		return LevelMedium
	case "high":
		return LevelHigh
	default:
		return LevelHigh
	}
}

// Order returns the numeric order of this level.
func (l Level) Order() int {
	levels := map[Level]int{
		LevelLow:    0,
		LevelMedium: 1,
		LevelHigh:   2,
	}
	return levels[l]
}

// AtLeast returns true if this level is at or above the threshold.
func (l Level) AtLeast(threshold Level) bool {
	return l.Order() >= threshold.Order()
}

// LevelForScore maps a score to its severity band using the default
// thresholds: 70 and above is HIGH, 40 and above is MEDIUM, else LOW.
func LevelForScore(score int) Level {
	switch {
	case score >= ThresholdHigh:
		return LevelHigh
	case score >= ThresholdMedium:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Observation is one edge's contribution to the engine input: the natural
// key of the connected node and the most recent time the edge was seen.
type Observation struct {
	Key      string
	LastSeen string
}

// Factor is one contributing signal in an assessment.
type Factor struct {
	Score   int            `json:"score"`
	Reason  string         `json:"reason"`
	Details map[string]any `json:"details,omitempty"`
}

// Assessment is the scored result for a single user.
type Assessment struct {
	Score   int      `json:"score"`
	Level   Level    `json:"level"`
	Factors []Factor `json:"factors"`
}

// Config holds tunables for the scoring engine.
//
// # Fields
//
//   - MultiIPWindow/Threshold/Weight/Cap: Distinct IPs over a day.
//   - RapidIPWindow/Threshold/Weight/Cap: Distinct IPs over an hour.
//   - MultiFPWindow/Threshold/Weight/Cap: Distinct fingerprints over a day.
//   - RapidChangeWindow/Gap/Weight/Cap: Identity events landing closer
//     together than Gap inside the window.
//   - MaxScore: Aggregate bound after summing factors.
//   - HighThreshold/MediumThreshold: Severity band boundaries.
type Config struct {
	MultiIPWindow    time.Duration
	MultiIPThreshold int
	MultiIPWeight    int
	MultiIPCap       int

	RapidIPWindow    time.Duration
	RapidIPThreshold int
	RapidIPWeight    int
	RapidIPCap       int

	MultiFPWindow    time.Duration
	MultiFPThreshold int
	MultiFPWeight    int
	MultiFPCap       int

	RapidChangeWindow time.Duration
	RapidChangeGap    time.Duration
	RapidChangeWeight int
	RapidChangeCap    int

	MaxScore        int
	HighThreshold   int
	MediumThreshold int
}

// DefaultConfig returns a Config with the stock windows, thresholds, and
// caps.
func DefaultConfig() Config {
	return Config{
		MultiIPWindow:    DefaultMultiIPWindow,
		MultiIPThreshold: DefaultMultiIPThreshold,
		MultiIPWeight:    DefaultMultiIPWeight,
		MultiIPCap:       DefaultMultiIPCap,

		RapidIPWindow:    DefaultRapidIPWindow,
		RapidIPThreshold: DefaultRapidIPThreshold,
		RapidIPWeight:    DefaultRapidIPWeight,
		RapidIPCap:       DefaultRapidIPCap,

		MultiFPWindow:    DefaultMultiFPWindow,
		MultiFPThreshold: DefaultMultiFPThreshold,
		MultiFPWeight:    DefaultMultiFPWeight,
		MultiFPCap:       DefaultMultiFPCap,

		RapidChangeWindow: DefaultRapidChangeWindow,
		RapidChangeGap:    DefaultRapidChangeGap,
		RapidChangeWeight: DefaultRapidChangeWeight,
		RapidChangeCap:    DefaultRapidChangeCap,

		MaxScore:        MaxScore,
		HighThreshold:   ThresholdHigh,
		MediumThreshold: ThresholdMedium,
	}
}

// FormatTimestamp renders t in the canonical storage layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a stored timestamp. Input may carry any fractional
// precision or an explicit offset; output from FormatTimestamp always
// carries milliseconds and a trailing Z.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
