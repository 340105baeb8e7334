// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultQueryLimit is applied when a query specifies no limit.
	DefaultQueryLimit = 100

	// MaxQueryLimit caps any requested limit.
	MaxQueryLimit = 1000
)

// Query selects nodes through the index namespace.
//
// Selection precedence: Type when set, else Property+Value when both set,
// else the whole index namespace (administrative listing; every node
// appears once per indexed property).
type Query struct {
	// Type filters by node type tag via the "type" property index.
	Type string

	// Property and Value filter by an exact property value. Both must be
	// set to take effect.
	Property string
	Value    any

	// Limit caps the number of returned nodes. Zero means
	// DefaultQueryLimit; values above MaxQueryLimit are clamped.
	Limit int

	// Cursor resumes a previous query. Opaque; valid only with the same
	// filter parameters.
	Cursor string
}

func (q *Query) normalize() {
	if q.Limit <= 0 {
		q.Limit = DefaultQueryLimit
	}
	if q.Limit > MaxQueryLimit {
		q.Limit = MaxQueryLimit
	}
}

// QueryResult is one page of query matches.
type QueryResult struct {
	// Nodes in index key order. May be shorter than the requested limit
	// when stale index rows were skipped.
	Nodes []*Node

	// Cursor resumes after this page. Empty when HasMore is false.
	Cursor string

	// HasMore is true when further matches remain.
	HasMore bool
}

// Query returns the nodes whose index rows match q.
//
// Description:
//
//	Lists index keys under the selected prefix, recovers each node id from
//	the trailing key segment, and fetches the nodes concurrently. Index
//	rows whose node no longer resolves are skipped: a crash between a node
//	delete and its index cleanup must not break reads. The store's listing
//	peeks one key past the page internally, so HasMore is authoritative.
//
// Outputs:
//
//	*QueryResult - Up to Limit nodes plus resume state.
//	error - Store failure; never a not-found.
func (db *DB) Query(ctx context.Context, q Query) (*QueryResult, error) {
	q.normalize()

	page, err := db.store.List(ctx, db.queryPrefix(q), q.Limit, q.Cursor)
	if err != nil {
		return nil, fmt.Errorf("list index: %w", err)
	}

	nodes := make([]*Node, len(page.Keys))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range page.Keys {
		g.Go(func() error {
			node, err := db.loadNode(gctx, nodeIDFromIndexKey(key))
			if errors.Is(err, ErrNodeNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			nodes[i] = node
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &QueryResult{Nodes: make([]*Node, 0, len(nodes))}
	for _, node := range nodes {
		if node != nil {
			result.Nodes = append(result.Nodes, node)
		}
	}
	if !page.Complete {
		result.Cursor = page.Cursor
		result.HasMore = true
	}
	return result, nil
}

func (db *DB) queryPrefix(q Query) string {
	switch {
	case q.Type != "":
		return db.indexValuePrefix(PropType, q.Type)
	case q.Property != "" && q.Value != nil:
		return db.indexValuePrefix(q.Property, q.Value)
	default:
		return db.indexPrefix
	}
}
