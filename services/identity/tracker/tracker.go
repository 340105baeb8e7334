// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tracker maintains the identity graph: one USER, IP, and
// FINGERPRINT node per natural key, linked by USES_IP and
// USES_FINGERPRINT edges that accumulate first-seen, last-seen, and count
// statistics.
//
// # Consistency
//
// Upserts are query-before-create without locking. Two concurrent calls
// for a never-seen natural key can both miss the lookup and both create a
// node; concurrent calls for the same user can lose an adjacency append
// (last writer wins). The edge record itself still persists, later
// lookups miss it and create a duplicate, and the risk engine aggregates
// over edges with tolerance for duplicates. Deployments that need strict
// single-record semantics must serialize calls per user.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saltline/driftwatch/services/identity/deviceinfo"
	"github.com/saltline/driftwatch/services/identity/graph"
	"github.com/saltline/driftwatch/services/identity/risk"
)

// Tracker records connections and serves identity projections.
//
// # Thread Safety
//
// Tracker is safe for concurrent use, subject to the package-level
// consistency caveats for writes against the same user.
type Tracker struct {
	graph      *graph.DB
	engine     atomic.Pointer[risk.Engine]
	classifier Classifier
	clock      func() time.Time
	log        *slog.Logger
	pageSize   int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithEngine replaces the default risk engine. e must be non-nil.
func WithEngine(e *risk.Engine) Option {
	return func(t *Tracker) { t.engine.Store(e) }
}

// WithClassifier replaces the default user-agent classifier.
func WithClassifier(c Classifier) Option {
	return func(t *Tracker) { t.classifier = c }
}

// WithClock replaces the wall clock. Tests pin it.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) { t.clock = clock }
}

// WithLogger replaces the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(t *Tracker) { t.log = log }
}

// WithPageSize bounds each user page during full-graph projection.
// Values below one keep the default.
func WithPageSize(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.pageSize = n
		}
	}
}

// New creates a Tracker over an open identity graph.
func New(g *graph.DB, opts ...Option) *Tracker {
	t := &Tracker{
		graph:      g,
		classifier: deviceinfo.NewClassifier(),
		clock:      time.Now,
		log:        slog.Default(),
		pageSize:   userPageSize,
	}
	t.engine.Store(risk.NewEngine(risk.DefaultConfig()))
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetEngine swaps the scoring engine, for configuration hot reload.
// In-flight assessments finish on the engine they started with. e must
// be non-nil.
func (t *Tracker) SetEngine(e *risk.Engine) {
	t.engine.Store(e)
}

var _ Classifier = (*deviceinfo.Classifier)(nil)

// RecordConnection ingests one observed connection.
//
// # Inputs
//
//   - userID, ip, fingerprint: Natural keys of the three nodes. The
//     boundary layer validates them; the tracker stores what it is given.
//   - userAgent: Raw header, classified into metadata on first sight of
//     the fingerprint.
//   - at: Event time. The zero value means the current clock reading.
//
// The three node upserts run concurrently and all complete before edge
// work starts. The two edge upserts run one after the other: a created
// edge rewrites the user's adjacency list, and concurrent rewrites of the
// same node drop appends.
func (t *Tracker) RecordConnection(ctx context.Context, userID, ip, fingerprint, userAgent string, at time.Time) error {
	if at.IsZero() {
		at = t.clock()
	}
	ts := risk.FormatTimestamp(at)

	var userNode, ipNode, fpNode *graph.Node
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := t.getOrCreateUserNode(gctx, userID, ts)
		if err != nil {
			return fmt.Errorf("upsert user node: %w", err)
		}
		userNode = n
		return nil
	})
	g.Go(func() error {
		n, err := t.getOrCreateIPNode(gctx, ip, ts)
		if err != nil {
			return fmt.Errorf("upsert ip node: %w", err)
		}
		ipNode = n
		return nil
	})
	g.Go(func() error {
		n, err := t.getOrCreateFingerprintNode(gctx, fingerprint, userAgent, ts)
		if err != nil {
			return fmt.Errorf("upsert fingerprint node: %w", err)
		}
		fpNode = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := t.upsertEdge(ctx, userNode.ID, ipNode.ID, EdgeTypeUsesIP, ts); err != nil {
		return fmt.Errorf("upsert %s edge: %w", EdgeTypeUsesIP, err)
	}
	if err := t.upsertEdge(ctx, userNode.ID, fpNode.ID, EdgeTypeUsesFingerprint, ts); err != nil {
		return fmt.Errorf("upsert %s edge: %w", EdgeTypeUsesFingerprint, err)
	}

	t.log.DebugContext(ctx, "connection recorded",
		"userId", userID,
		"ip", ip,
		"timestamp", ts,
	)
	return nil
}

// getOrCreateUserNode returns the USER node for userID, creating it on
// first sight.
func (t *Tracker) getOrCreateUserNode(ctx context.Context, userID, ts string) (*graph.Node, error) {
	found, err := t.findByNaturalKey(ctx, PropUserID, userID)
	if err != nil {
		return nil, err
	}
	if found != nil {
		return t.graph.UpdateNode(ctx, found.ID, graph.Properties{PropLastSeen: ts})
	}
	return t.graph.CreateNode(ctx, graph.Properties{
		graph.PropType: NodeTypeUser,
		PropUserID:     userID,
		PropFirstSeen:  ts,
		PropLastSeen:   ts,
	})
}

// getOrCreateIPNode returns the IP node for ip, creating it on first
// sight.
func (t *Tracker) getOrCreateIPNode(ctx context.Context, ip, ts string) (*graph.Node, error) {
	found, err := t.findByNaturalKey(ctx, PropIP, ip)
	if err != nil {
		return nil, err
	}
	if found != nil {
		return t.graph.UpdateNode(ctx, found.ID, graph.Properties{PropLastSeen: ts})
	}
	return t.graph.CreateNode(ctx, graph.Properties{
		graph.PropType: NodeTypeIP,
		PropIP:         ip,
		PropFirstSeen:  ts,
		PropLastSeen:   ts,
	})
}

// getOrCreateFingerprintNode returns the FINGERPRINT node for fingerprint,
// creating it on first sight. Device metadata is classified once, at
// creation; later connections do not re-classify.
func (t *Tracker) getOrCreateFingerprintNode(ctx context.Context, fingerprint, userAgent, ts string) (*graph.Node, error) {
	found, err := t.findByNaturalKey(ctx, PropFingerprint, fingerprint)
	if err != nil {
		return nil, err
	}
	if found != nil {
		return t.graph.UpdateNode(ctx, found.ID, graph.Properties{PropLastSeen: ts})
	}
	return t.graph.CreateNode(ctx, graph.Properties{
		graph.PropType:  NodeTypeFingerprint,
		PropFingerprint: fingerprint,
		PropFirstSeen:   ts,
		PropLastSeen:    ts,
		PropMetadata:    t.classifier.Classify(userAgent),
	})
}

// findByNaturalKey resolves a node by one indexed property value. Returns
// nil without error when no node matches.
func (t *Tracker) findByNaturalKey(ctx context.Context, property, value string) (*graph.Node, error) {
	res, err := t.graph.Query(ctx, graph.Query{Property: property, Value: value, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", property, err)
	}
	if len(res.Nodes) == 0 {
		return nil, nil
	}
	return res.Nodes[0], nil
}

// upsertEdge advances the user's outbound edge matching (edgeType, toID),
// or creates it on first co-occurrence.
func (t *Tracker) upsertEdge(ctx context.Context, fromID, toID, edgeType, ts string) error {
	from, err := t.graph.GetNode(ctx, fromID)
	if err != nil {
		return fmt.Errorf("load edge origin: %w", err)
	}

	edges, err := t.fetchEdges(ctx, from.OutEdges)
	if err != nil {
		return err
	}
	for _, edge := range edges {
		if edge == nil || edge.Type != edgeType || edge.ToNodeID != toID {
			continue
		}
		_, err := t.graph.UpdateEdge(ctx, edge.ID, graph.Properties{
			PropLastSeen: ts,
			PropCount:    edge.Properties.Int(PropCount) + 1,
		})
		return err
	}

	_, err = t.graph.CreateEdge(ctx, fromID, toID, edgeType, graph.Properties{
		PropFirstSeen: ts,
		PropLastSeen:  ts,
		PropCount:     1,
	})
	return err
}

// fetchEdges loads edge records concurrently, preserving adjacency order.
// Edges that no longer resolve come back nil.
func (t *Tracker) fetchEdges(ctx context.Context, edgeIDs []string) ([]*graph.Edge, error) {
	edges := make([]*graph.Edge, len(edgeIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, edgeID := range edgeIDs {
		g.Go(func() error {
			e, err := t.graph.GetEdge(gctx, edgeID)
			if err != nil {
				if errors.Is(err, graph.ErrEdgeNotFound) {
					return nil
				}
				return fmt.Errorf("load edge %s: %w", edgeID, err)
			}
			edges[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return edges, nil
}
