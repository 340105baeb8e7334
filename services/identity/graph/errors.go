// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph implements a schema-light property graph of typed nodes and
// typed directed edges over a flat ordered key-value store.
//
// The store offers only point get/put/delete and ordered prefix listing;
// this package layers on top of that: secondary indexes on node properties,
// adjacency lists, value-indexed queries with cursors, neighborhood lookups,
// and depth-bounded traversal. It owns the full key layout.
//
// # Ownership Model
//
// Nodes reference edges by id in their adjacency lists and edges reference
// nodes by id. Ids are values, never pointers; resolution always goes back
// through the store, so there are no in-memory reference cycles and no
// cached object graph to invalidate.
//
// # Consistency
//
// The store provides no multi-key atomicity and this package does not
// simulate any. A crash or cancellation mid-operation can leave partial
// writes (a node without some index rows, an edge missing from an adjacency
// list). Read paths tolerate that skew: query assembly, traversal, and edge
// deletion all skip records that no longer resolve.
//
// # Thread Safety
//
// A DB is safe for concurrent use; it holds no mutable state beyond the
// store handle. Concurrent writers touching the same node can lose adjacency
// updates (last writer wins); callers that cannot accept that must
// serialize writes per node id themselves.
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrNodeNotFound is returned when a node id does not resolve.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEdgeNotFound is returned when an edge id does not resolve.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrEndpointMissing is returned by CreateEdge when either endpoint
	// node does not exist. Both endpoints must be created first.
	ErrEndpointMissing = errors.New("edge endpoint missing")

	// ErrInvalidDirection is returned when a direction value is not one
	// of the accepted constants for the operation.
	ErrInvalidDirection = errors.New("invalid direction")
)
