// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package risk

import (
	"sort"
	"time"
)

// Engine computes assessments from tracker observations.
//
// # Thread Safety
//
// Engine is stateless after construction and safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine with the given configuration. Callers that
// want the stock behavior pass DefaultConfig().
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate scores a user's recent identity behavior as of now.
//
// # Inputs
//
//   - ips: One observation per connected IP edge.
//   - fingerprints: One observation per connected fingerprint edge.
//   - now: The evaluation instant. Windows extend backward from it.
//
// # Outputs
//
//   - Assessment: Bounded score, severity band, and contributing factors.
//
// Factors that do not exceed their threshold are omitted. With no recent
// activity the assessment is zero with an empty factor list.
func (e *Engine) Evaluate(ips, fingerprints []Observation, now time.Time) Assessment {
	factors := make([]Factor, 0, 4)

	if f, ok := e.multiIPFactor(ips, now); ok {
		factors = append(factors, f)
	}
	if f, ok := e.rapidIPFactor(ips, now); ok {
		factors = append(factors, f)
	}
	if f, ok := e.multiFingerprintFactor(fingerprints, now); ok {
		factors = append(factors, f)
	}
	if f, ok := e.rapidChangeFactor(ips, fingerprints, now); ok {
		factors = append(factors, f)
	}

	score := 0
	for _, f := range factors {
		score += f.Score
	}
	if score > e.cfg.MaxScore {
		score = e.cfg.MaxScore
	}

	return Assessment{
		Score:   score,
		Level:   e.levelFor(score),
		Factors: factors,
	}
}

// multiIPFactor counts distinct IPs seen inside the long window.
func (e *Engine) multiIPFactor(ips []Observation, now time.Time) (Factor, bool) {
	window := e.cfg.MultiIPWindow
	n := distinctSince(ips, cutoff(now, window))
	if n <= e.cfg.MultiIPThreshold {
		return Factor{}, false
	}
	return Factor{
		Score:  capped(n*e.cfg.MultiIPWeight, e.cfg.MultiIPCap),
		Reason: ReasonMultipleIPs,
		Details: map[string]any{
			"uniqueIPs": n,
			"window":    window.String(),
		},
	}, true
}

// rapidIPFactor counts distinct IPs seen inside the short window.
func (e *Engine) rapidIPFactor(ips []Observation, now time.Time) (Factor, bool) {
	window := e.cfg.RapidIPWindow
	n := distinctSince(ips, cutoff(now, window))
	if n <= e.cfg.RapidIPThreshold {
		return Factor{}, false
	}
	return Factor{
		Score:  capped(n*e.cfg.RapidIPWeight, e.cfg.RapidIPCap),
		Reason: ReasonRapidIPSwitching,
		Details: map[string]any{
			"uniqueIPs": n,
			"window":    window.String(),
		},
	}, true
}

// multiFingerprintFactor counts distinct fingerprints seen inside the long
// window.
func (e *Engine) multiFingerprintFactor(fingerprints []Observation, now time.Time) (Factor, bool) {
	window := e.cfg.MultiFPWindow
	n := distinctSince(fingerprints, cutoff(now, window))
	if n <= e.cfg.MultiFPThreshold {
		return Factor{}, false
	}
	return Factor{
		Score:  capped(n*e.cfg.MultiFPWeight, e.cfg.MultiFPCap),
		Reason: ReasonMultipleFingerprints,
		Details: map[string]any{
			"uniqueFingerprints": n,
			"window":             window.String(),
		},
	}, true
}

// rapidChangeFactor merges IP and fingerprint activity into one timeline
// and counts adjacent events that land closer together than the configured
// gap. An IP edge and a fingerprint edge stamped by the same connection
// share a timestamp; a zero delta is one event, not a change, and does not
// count.
func (e *Engine) rapidChangeFactor(ips, fingerprints []Observation, now time.Time) (Factor, bool) {
	cut := cutoff(now, e.cfg.RapidChangeWindow)

	events := make([]time.Time, 0, len(ips)+len(fingerprints))
	for _, o := range ips {
		if t, ok := eventTime(o, cut); ok {
			events = append(events, t)
		}
	}
	for _, o := range fingerprints {
		if t, ok := eventTime(o, cut); ok {
			events = append(events, t)
		}
	}
	if len(events) < 2 {
		return Factor{}, false
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Before(events[j]) })

	pairs := 0
	for i := 1; i < len(events); i++ {
		delta := events[i].Sub(events[i-1])
		if delta > 0 && delta < e.cfg.RapidChangeGap {
			pairs++
		}
	}
	if pairs == 0 {
		return Factor{}, false
	}
	return Factor{
		Score:  capped(pairs*e.cfg.RapidChangeWeight, e.cfg.RapidChangeCap),
		Reason: ReasonRapidIdentityChanges,
		Details: map[string]any{
			"rapidPairs": pairs,
			"window":     e.cfg.RapidChangeWindow.String(),
		},
	}, true
}

func (e *Engine) levelFor(score int) Level {
	switch {
	case score >= e.cfg.HighThreshold:
		return LevelHigh
	case score >= e.cfg.MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// cutoff renders the inclusive lower bound of a window ending at now.
func cutoff(now time.Time, window time.Duration) string {
	return FormatTimestamp(now.Add(-window))
}

// distinctSince counts distinct natural keys whose lastSeen falls at or
// after the cutoff. Duplicate edges for the same key count once.
func distinctSince(obs []Observation, cutoff string) int {
	seen := make(map[string]struct{}, len(obs))
	for _, o := range obs {
		if o.LastSeen >= cutoff {
			seen[o.Key] = struct{}{}
		}
	}
	return len(seen)
}

// eventTime admits an observation into the rapid-change timeline. Values
// that fall before the cutoff or fail to parse are dropped.
func eventTime(o Observation, cutoff string) (time.Time, bool) {
	if o.LastSeen < cutoff {
		return time.Time{}, false
	}
	t, err := ParseTimestamp(o.LastSeen)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func capped(score, limit int) int {
	if score > limit {
		return limit
	}
	return score
}
