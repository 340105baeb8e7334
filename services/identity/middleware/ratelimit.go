// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig controls per-client request throttling.
//
// # Fields
//
//   - RPS: Sustained requests per second allowed per client.
//   - Burst: Instantaneous burst allowance per client.
//   - IdleTTL: How long an idle client keeps its limiter before the
//     sweeper reclaims it.
type RateLimitConfig struct {
	RPS     float64
	Burst   int
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns limits suitable for a single ingest
// frontend.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RPS:     25,
		Burst:   50,
		IdleTTL: 10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per client IP with token buckets.
//
// # Thread Safety
//
// Safe for concurrent use. Run the sweeper via Run to bound memory under
// churning client populations.
type RateLimiter struct {
	cfg   RateLimitConfig
	clock func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

// NewRateLimiter creates a rate limiter with the given limits.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RPS <= 0 {
		cfg.RPS = DefaultRateLimitConfig().RPS
	}
	if cfg.Burst < 1 {
		cfg.Burst = DefaultRateLimitConfig().Burst
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultRateLimitConfig().IdleTTL
	}
	return &RateLimiter{
		cfg:     cfg,
		clock:   time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

// UpdateLimits applies new rate and burst limits, including to clients
// already tracked. Zero fields fall back to defaults, matching
// NewRateLimiter. The sweep cadence is fixed when Run starts; an IdleTTL
// change moves the eviction cutoff only.
func (rl *RateLimiter) UpdateLimits(cfg RateLimitConfig) {
	if cfg.RPS <= 0 {
		cfg.RPS = DefaultRateLimitConfig().RPS
	}
	if cfg.Burst < 1 {
		cfg.Burst = DefaultRateLimitConfig().Burst
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultRateLimitConfig().IdleTTL
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.cfg = cfg
	for _, cl := range rl.clients {
		cl.limiter.SetLimit(rate.Limit(cfg.RPS))
		cl.limiter.SetBurst(cfg.Burst)
	}
}

// Allow reports whether the client may proceed, consuming one token.
func (rl *RateLimiter) Allow(clientKey string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.clients[clientKey]
	if !ok {
		cl = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(rl.cfg.RPS), rl.cfg.Burst),
		}
		rl.clients[clientKey] = cl
	}
	cl.lastSeen = rl.clock()
	return cl.limiter.Allow()
}

// Run sweeps idle client limiters until the context is cancelled. Run it
// in a goroutine alongside the server.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.cfg.IdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-ctx.Done():
			return
		}
	}
}

// sweep drops limiters idle past the TTL.
func (rl *RateLimiter) sweep() {
	cutoff := rl.clock().Add(-rl.cfg.IdleTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, cl := range rl.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}

// size reports the tracked client count. For tests.
func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Middleware returns a Gin middleware that throttles by client IP.
// Throttled requests receive 429 with a Retry-After hint.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
