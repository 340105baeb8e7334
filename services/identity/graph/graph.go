// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/saltline/driftwatch/pkg/ident"
	"github.com/saltline/driftwatch/services/identity/storage"
)

// Options configures a graph DB. Prefixes let several graphs share one
// store without key collisions.
type Options struct {
	// NodePrefix is the key prefix for node records. Default "node:".
	NodePrefix string

	// EdgePrefix is the key prefix for edge records. Default "edge:".
	EdgePrefix string

	// IndexPrefix is the key prefix for index rows. Default "index:".
	IndexPrefix string

	// IDGenerator allocates record ids. Default ident.New. Tests inject
	// deterministic generators here.
	IDGenerator func() (string, error)
}

// DefaultOptions returns the standard key layout and id generator.
func DefaultOptions() Options {
	return Options{
		NodePrefix:  "node:",
		EdgePrefix:  "edge:",
		IndexPrefix: "index:",
		IDGenerator: ident.New,
	}
}

// Option mutates Options during construction.
type Option func(*Options)

// WithNodePrefix overrides the node key prefix.
func WithNodePrefix(prefix string) Option {
	return func(o *Options) { o.NodePrefix = prefix }
}

// WithEdgePrefix overrides the edge key prefix.
func WithEdgePrefix(prefix string) Option {
	return func(o *Options) { o.EdgePrefix = prefix }
}

// WithIndexPrefix overrides the index key prefix.
func WithIndexPrefix(prefix string) Option {
	return func(o *Options) { o.IndexPrefix = prefix }
}

// WithIDGenerator overrides id allocation.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(o *Options) { o.IDGenerator = fn }
}

// DB is a property graph bound to a store. Safe for concurrent use; see the
// package documentation for the consistency model.
type DB struct {
	store       storage.Store
	nodePrefix  string
	edgePrefix  string
	indexPrefix string
	newID       func() (string, error)
}

// New creates a graph DB over the given store.
func New(store storage.Store, opts ...Option) *DB {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &DB{
		store:       store,
		nodePrefix:  o.NodePrefix,
		edgePrefix:  o.EdgePrefix,
		indexPrefix: o.IndexPrefix,
		newID:       o.IDGenerator,
	}
}

// ===========================================================================
// Node operations
// ===========================================================================

// CreateNode allocates a fresh node with the given properties.
//
// Description:
//
//	Writes the node record first, then one index row per property. Natural
//	key uniqueness is NOT verified here; that discipline belongs to the
//	caller (the tracker queries before creating).
//
// Inputs:
//
//	ctx - Cancellation context.
//	properties - Initial property map. May be nil.
//
// Outputs:
//
//	*Node - The new node with empty adjacency lists.
//	error - Id allocation or store failure.
func (db *DB) CreateNode(ctx context.Context, properties Properties) (*Node, error) {
	id, err := db.newID()
	if err != nil {
		return nil, err
	}

	node := &Node{
		ID:         id,
		Properties: properties.Clone(),
		InEdges:    []string{},
		OutEdges:   []string{},
	}

	if err := db.saveNode(ctx, node); err != nil {
		return nil, err
	}
	if err := db.writeIndexRows(ctx, node); err != nil {
		return nil, err
	}
	return node, nil
}

// GetNode returns the node with the given id, or ErrNodeNotFound.
func (db *DB) GetNode(ctx context.Context, id string) (*Node, error) {
	return db.loadNode(ctx, id)
}

// UpdateNode merges delta over the node's properties and refreshes indexes.
//
// Description:
//
//	Deletes the index rows for EVERY current property, merges the delta
//	(delta overwrites), writes the node back, and writes index rows for
//	every resulting property. Deleting all rows rather than diffing keeps
//	a changed value from leaving its old index row behind, and property
//	maps here are small enough that the extra writes don't matter.
//
// Outputs:
//
//	*Node - The updated node.
//	error - ErrNodeNotFound or a store failure.
func (db *DB) UpdateNode(ctx context.Context, id string, delta Properties) (*Node, error) {
	node, err := db.loadNode(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := db.deleteIndexRows(ctx, node); err != nil {
		return nil, err
	}

	if node.Properties == nil {
		node.Properties = Properties{}
	}
	node.Properties.merge(delta)

	if err := db.saveNode(ctx, node); err != nil {
		return nil, err
	}
	if err := db.writeIndexRows(ctx, node); err != nil {
		return nil, err
	}
	return node, nil
}

// DeleteNode removes a node, cascading over its incident edges.
//
// Description:
//
//	Every edge in the node's adjacency lists is deleted first (fixing up
//	the far endpoints), then the node's index rows, then the node record.
//	Edges that no longer resolve are skipped; a stale adjacency entry must
//	not abort the cascade.
//
// Outputs:
//
//	error - ErrNodeNotFound if the node did not exist, or a store failure.
func (db *DB) DeleteNode(ctx context.Context, id string) error {
	node, err := db.loadNode(ctx, id)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(node.InEdges)+len(node.OutEdges))
	for _, edgeID := range append(append([]string{}, node.InEdges...), node.OutEdges...) {
		if _, dup := seen[edgeID]; dup {
			continue
		}
		seen[edgeID] = struct{}{}

		if err := db.DeleteEdge(ctx, edgeID); err != nil && !errors.Is(err, ErrEdgeNotFound) {
			return fmt.Errorf("cascade delete edge %s: %w", edgeID, err)
		}
	}

	if err := db.deleteIndexRows(ctx, node); err != nil {
		return err
	}
	if err := db.store.Delete(ctx, db.nodeKey(id)); err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	return nil
}

// ===========================================================================
// Edge operations
// ===========================================================================

// CreateEdge creates a typed directed edge between two existing nodes.
//
// Description:
//
//	Both endpoints are fetched concurrently; a missing endpoint fails the
//	call with ErrEndpointMissing. The new edge id is appended to the from
//	node's outEdges and the to node's inEdges, both node records are
//	rewritten, then the edge record is written. Endpoint records are not
//	locked; concurrent appends to the same node can be lost (last writer
//	wins) and readers must tolerate the resulting skew.
//
// Inputs:
//
//	ctx - Cancellation context.
//	fromID, toID - Endpoint node ids.
//	edgeType - Arbitrary type tag (e.g. "USES_IP").
//	properties - Initial edge properties. May be nil.
//
// Outputs:
//
//	*Edge - The new edge.
//	error - ErrEndpointMissing or a store failure.
func (db *DB) CreateEdge(ctx context.Context, fromID, toID, edgeType string, properties Properties) (*Edge, error) {
	var fromNode, toNode *Node

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := db.loadNode(gctx, fromID)
		if errors.Is(err, ErrNodeNotFound) {
			return fmt.Errorf("from node %s: %w", fromID, ErrEndpointMissing)
		}
		fromNode = n
		return err
	})
	g.Go(func() error {
		n, err := db.loadNode(gctx, toID)
		if errors.Is(err, ErrNodeNotFound) {
			return fmt.Errorf("to node %s: %w", toID, ErrEndpointMissing)
		}
		toNode = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	id, err := db.newID()
	if err != nil {
		return nil, err
	}

	edge := &Edge{
		ID:         id,
		Type:       edgeType,
		FromNodeID: fromID,
		ToNodeID:   toID,
		Properties: properties.Clone(),
	}

	if fromID == toID {
		// Self edge: one record carries both adjacency entries.
		fromNode.OutEdges = append(fromNode.OutEdges, id)
		fromNode.InEdges = append(fromNode.InEdges, id)
		if err := db.saveNode(ctx, fromNode); err != nil {
			return nil, err
		}
	} else {
		fromNode.OutEdges = append(fromNode.OutEdges, id)
		toNode.InEdges = append(toNode.InEdges, id)
		if err := db.saveNode(ctx, fromNode); err != nil {
			return nil, err
		}
		if err := db.saveNode(ctx, toNode); err != nil {
			return nil, err
		}
	}

	if err := db.saveEdge(ctx, edge); err != nil {
		return nil, err
	}
	return edge, nil
}

// GetEdge returns the edge with the given id, or ErrEdgeNotFound.
func (db *DB) GetEdge(ctx context.Context, id string) (*Edge, error) {
	return db.loadEdge(ctx, id)
}

// UpdateEdge merges delta over the edge's properties. Edges carry no index
// rows, so there is no index bookkeeping.
func (db *DB) UpdateEdge(ctx context.Context, id string, delta Properties) (*Edge, error) {
	edge, err := db.loadEdge(ctx, id)
	if err != nil {
		return nil, err
	}

	if edge.Properties == nil {
		edge.Properties = Properties{}
	}
	edge.Properties.merge(delta)

	if err := db.saveEdge(ctx, edge); err != nil {
		return nil, err
	}
	return edge, nil
}

// DeleteEdge removes an edge and unlinks it from both endpoints.
//
// Description:
//
//	Each endpoint that still resolves is rewritten with the edge id
//	removed from its adjacency list; endpoints that are gone are skipped
//	silently. The edge record is deleted last.
//
// Outputs:
//
//	error - ErrEdgeNotFound if the edge did not exist, or a store failure.
func (db *DB) DeleteEdge(ctx context.Context, id string) error {
	edge, err := db.loadEdge(ctx, id)
	if err != nil {
		return err
	}

	if edge.FromNodeID == edge.ToNodeID {
		if node, err := db.loadNode(ctx, edge.FromNodeID); err == nil {
			node.OutEdges = removeID(node.OutEdges, id)
			node.InEdges = removeID(node.InEdges, id)
			if err := db.saveNode(ctx, node); err != nil {
				return err
			}
		} else if !errors.Is(err, ErrNodeNotFound) {
			return err
		}
	} else {
		if node, err := db.loadNode(ctx, edge.FromNodeID); err == nil {
			node.OutEdges = removeID(node.OutEdges, id)
			if err := db.saveNode(ctx, node); err != nil {
				return err
			}
		} else if !errors.Is(err, ErrNodeNotFound) {
			return err
		}

		if node, err := db.loadNode(ctx, edge.ToNodeID); err == nil {
			node.InEdges = removeID(node.InEdges, id)
			if err := db.saveNode(ctx, node); err != nil {
				return err
			}
		} else if !errors.Is(err, ErrNodeNotFound) {
			return err
		}
	}

	if err := db.store.Delete(ctx, db.edgeKey(id)); err != nil {
		return fmt.Errorf("delete edge %s: %w", id, err)
	}
	return nil
}

// ===========================================================================
// Record codec and index maintenance
// ===========================================================================

func (db *DB) loadNode(ctx context.Context, id string) (*Node, error) {
	raw, err := db.store.Get(ctx, db.nodeKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, fmt.Errorf("node %s: %w", id, ErrNodeNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load node %s: %w", id, err)
	}

	var node Node
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("decode node %s: %w", id, err)
	}
	return &node, nil
}

func (db *DB) saveNode(ctx context.Context, node *Node) error {
	raw, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("encode node %s: %w", node.ID, err)
	}
	if err := db.store.Put(ctx, db.nodeKey(node.ID), raw); err != nil {
		return fmt.Errorf("save node %s: %w", node.ID, err)
	}
	return nil
}

func (db *DB) loadEdge(ctx context.Context, id string) (*Edge, error) {
	raw, err := db.store.Get(ctx, db.edgeKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, fmt.Errorf("edge %s: %w", id, ErrEdgeNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load edge %s: %w", id, err)
	}

	var edge Edge
	if err := json.Unmarshal(raw, &edge); err != nil {
		return nil, fmt.Errorf("decode edge %s: %w", id, err)
	}
	return &edge, nil
}

func (db *DB) saveEdge(ctx context.Context, edge *Edge) error {
	raw, err := json.Marshal(edge)
	if err != nil {
		return fmt.Errorf("encode edge %s: %w", edge.ID, err)
	}
	if err := db.store.Put(ctx, db.edgeKey(edge.ID), raw); err != nil {
		return fmt.Errorf("save edge %s: %w", edge.ID, err)
	}
	return nil
}

// writeIndexRows writes one index row per node property. Rows are
// independent keys, so the writes fan out concurrently.
func (db *DB) writeIndexRows(ctx context.Context, node *Node) error {
	g, gctx := errgroup.WithContext(ctx)
	for key, value := range node.Properties {
		g.Go(func() error {
			raw, err := json.Marshal(indexRecord{NodeID: node.ID, Value: value})
			if err != nil {
				return fmt.Errorf("encode index row %s: %w", key, err)
			}
			if err := db.store.Put(gctx, db.indexKey(key, value, node.ID), raw); err != nil {
				return fmt.Errorf("write index row %s: %w", key, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// deleteIndexRows removes the index row for every current node property.
func (db *DB) deleteIndexRows(ctx context.Context, node *Node) error {
	g, gctx := errgroup.WithContext(ctx)
	for key, value := range node.Properties {
		g.Go(func() error {
			if err := db.store.Delete(gctx, db.indexKey(key, value, node.ID)); err != nil {
				return fmt.Errorf("delete index row %s: %w", key, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func removeID(list []string, id string) []string {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
