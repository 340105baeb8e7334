// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package alerts fans risk assessments out to websocket subscribers.
//
// The hub runs a single goroutine that owns the subscriber set. Publishers
// and subscribers talk to it over channels, so no lock is shared with
// request handlers. Slow subscribers lose alerts rather than stall the
// hub.
package alerts

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/saltline/driftwatch/services/identity/risk"
)

// ErrHubClosed is returned by Subscribe after the hub has stopped.
var ErrHubClosed = errors.New("alert hub closed")

// Alert is one published risk event.
type Alert struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	IP        string        `json:"ip,omitempty"`
	Score     int           `json:"score"`
	Level     risk.Level    `json:"level"`
	Factors   []risk.Factor `json:"factors"`
	Timestamp string        `json:"timestamp"`
}

// NewAlert builds an Alert from an assessment. The id is a ULID, so alerts
// sort by creation time.
func NewAlert(userID, ip string, a risk.Assessment, at time.Time) Alert {
	return Alert{
		ID:        ulid.Make().String(),
		UserID:    userID,
		IP:        ip,
		Score:     a.Score,
		Level:     a.Level,
		Factors:   a.Factors,
		Timestamp: risk.FormatTimestamp(at),
	}
}

// Config holds hub tunables.
//
// # Fields
//
//   - Threshold: Minimum level published; lower assessments are ignored.
//   - BufferSize: Per-subscriber queue depth.
//   - QueueSize: Publish queue depth shared by all publishers.
type Config struct {
	Threshold  risk.Level
	BufferSize int
	QueueSize  int
}

// DefaultConfig returns a Config that publishes MEDIUM and above.
func DefaultConfig() Config {
	return Config{
		Threshold:  risk.LevelMedium,
		BufferSize: 16,
		QueueSize:  64,
	}
}

// Subscription is one subscriber's view of the hub. Receive alerts from C;
// it is closed when the subscription ends or the hub stops.
type Subscription struct {
	C   <-chan Alert
	hub *Hub
	sub *subscriber
}

// Close ends the subscription and closes C.
func (s *Subscription) Close() {
	select {
	case s.hub.unregister <- s.sub:
	case <-s.hub.done:
	}
}

type subscriber struct {
	ch chan Alert
}

// Hub broadcasts alerts to all current subscribers.
//
// # Thread Safety
//
// All methods are safe for concurrent use once Run has been started.
type Hub struct {
	cfg         Config
	threshold   atomic.Int32
	log         *slog.Logger
	register    chan *subscriber
	unregister  chan *subscriber
	broadcast   chan Alert
	done        chan struct{}
	subscribers map[*subscriber]struct{}
	dropped     atomic.Int64
}

// NewHub creates a Hub. Call Run before subscribing or publishing.
func NewHub(cfg Config, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		cfg:         cfg,
		log:         log,
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		broadcast:   make(chan Alert, cfg.QueueSize),
		done:        make(chan struct{}),
		subscribers: make(map[*subscriber]struct{}),
	}
	h.threshold.Store(int32(cfg.Threshold.Order()))
	return h
}

// SetThreshold changes the minimum published level, for configuration
// hot reload.
func (h *Hub) SetThreshold(level risk.Level) {
	h.threshold.Store(int32(level.Order()))
}

// Run owns the subscriber set until ctx is cancelled. On exit every
// subscriber channel is closed.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for sub := range h.subscribers {
			close(sub.ch)
		}
		h.subscribers = nil
		close(h.done)
	}()

	for {
		select {
		case sub := <-h.register:
			h.subscribers[sub] = struct{}{}

		case sub := <-h.unregister:
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.ch)
			}

		case alert := <-h.broadcast:
			for sub := range h.subscribers {
				select {
				case sub.ch <- alert:
				default:
					h.dropped.Add(1)
					h.log.Warn("subscriber queue full, alert dropped",
						"alertId", alert.ID,
						"userId", alert.UserID,
					)
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() (*Subscription, error) {
	sub := &subscriber{ch: make(chan Alert, h.cfg.BufferSize)}
	select {
	case h.register <- sub:
		return &Subscription{C: sub.ch, hub: h, sub: sub}, nil
	case <-h.done:
		return nil, ErrHubClosed
	}
}

// Publish enqueues an alert for broadcast. Assessments under the
// configured threshold are ignored. Publish never blocks; when the queue
// is full the alert is dropped and counted.
func (h *Hub) Publish(alert Alert) {
	if alert.Level.Order() < int(h.threshold.Load()) {
		return
	}
	select {
	case h.broadcast <- alert:
	case <-h.done:
	default:
		h.dropped.Add(1)
		h.log.Warn("alert queue full, alert dropped",
			"alertId", alert.ID,
			"userId", alert.UserID,
		)
	}
}

// Dropped reports how many alert deliveries have been discarded.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
