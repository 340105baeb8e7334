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

// DefaultMaxDepth bounds traversals that specify no depth.
const DefaultMaxDepth = 3

// TraverseOptions controls Traverse.
type TraverseOptions struct {
	// MaxDepth bounds the walk. Nodes at this depth are returned but not
	// expanded. Zero means DefaultMaxDepth.
	MaxDepth int

	// Direction selects which adjacency lists feed the frontier:
	// DirectionIn, DirectionOut, or DirectionBoth. Empty means both.
	Direction Direction

	// EdgeType, when set, restricts the walk to edges of that type.
	EdgeType string
}

// GetConnectedNodes returns the nodes adjacent to nodeID in one direction.
//
// Description:
//
//	Follows the node's out or in adjacency list, optionally filtered by
//	edge type, and returns the far endpoint of each surviving edge. Edges
//	or endpoints that no longer resolve are dropped silently; adjacency
//	lists can run ahead of the records under the accepted write model.
//	Duplicate edges to the same endpoint yield duplicate entries.
//
// Inputs:
//
//	ctx - Cancellation context.
//	nodeID - Origin node.
//	direction - DirectionIn or DirectionOut.
//	edgeType - Optional filter; empty matches all types.
//
// Outputs:
//
//	[]*Node - Far endpoints in adjacency order.
//	error - ErrNodeNotFound, ErrInvalidDirection, or a store failure.
func (db *DB) GetConnectedNodes(ctx context.Context, nodeID string, direction Direction, edgeType string) ([]*Node, error) {
	if direction != DirectionIn && direction != DirectionOut {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}

	node, err := db.loadNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	return db.neighbors(ctx, node, direction, edgeType)
}

// neighbors resolves one adjacency list to far-endpoint nodes. The node is
// already loaded; direction must be in or out.
func (db *DB) neighbors(ctx context.Context, node *Node, direction Direction, edgeType string) ([]*Node, error) {
	edgeIDs := node.OutEdges
	if direction == DirectionIn {
		edgeIDs = node.InEdges
	}
	if len(edgeIDs) == 0 {
		return []*Node{}, nil
	}

	edges := make([]*Edge, len(edgeIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range edgeIDs {
		g.Go(func() error {
			edge, err := db.loadEdge(gctx, id)
			if errors.Is(err, ErrEdgeNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			edges[i] = edge
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	farIDs := make([]string, 0, len(edges))
	for _, edge := range edges {
		if edge == nil {
			continue
		}
		if edgeType != "" && edge.Type != edgeType {
			continue
		}
		if direction == DirectionOut {
			farIDs = append(farIDs, edge.ToNodeID)
		} else {
			farIDs = append(farIDs, edge.FromNodeID)
		}
	}

	found := make([]*Node, len(farIDs))
	g, gctx = errgroup.WithContext(ctx)
	for i, id := range farIDs {
		g.Go(func() error {
			far, err := db.loadNode(gctx, id)
			if errors.Is(err, ErrNodeNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			found[i] = far
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*Node, 0, len(found))
	for _, n := range found {
		if n != nil {
			out = append(out, n)
		}
	}
	return out, nil
}

// Traverse walks outward from startID and returns every reachable node
// within the depth bound, in discovery order, each at most once.
//
// Description:
//
//	Depth-first walk sharing one visited set and one result buffer across
//	the recursion. The frontier at each node is the union of the requested
//	directions' neighbors under the edge type filter (out first, then in,
//	when both are requested). Nodes at MaxDepth are collected but not
//	expanded. Nodes that vanish mid-walk are skipped.
//
// Outputs:
//
//	[]*Node - Discovery-ordered nodes, starting with the start node.
//	error - ErrNodeNotFound if startID does not resolve,
//	        ErrInvalidDirection, or a store failure.
func (db *DB) Traverse(ctx context.Context, startID string, opts TraverseOptions) ([]*Node, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Direction == "" {
		opts.Direction = DirectionBoth
	}
	if opts.Direction != DirectionIn && opts.Direction != DirectionOut && opts.Direction != DirectionBoth {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDirection, opts.Direction)
	}

	start, err := db.loadNode(ctx, startID)
	if err != nil {
		return nil, err
	}

	visited := make(map[string]struct{})
	result := make([]*Node, 0, 16)
	if err := db.walk(ctx, start, 0, opts, visited, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (db *DB) walk(ctx context.Context, node *Node, depth int, opts TraverseOptions, visited map[string]struct{}, result *[]*Node) error {
	if _, seen := visited[node.ID]; seen {
		return nil
	}
	visited[node.ID] = struct{}{}
	*result = append(*result, node)

	if depth >= opts.MaxDepth {
		return nil
	}

	var frontier []*Node
	if opts.Direction == DirectionOut || opts.Direction == DirectionBoth {
		nodes, err := db.neighbors(ctx, node, DirectionOut, opts.EdgeType)
		if err != nil {
			return err
		}
		frontier = append(frontier, nodes...)
	}
	if opts.Direction == DirectionIn || opts.Direction == DirectionBoth {
		nodes, err := db.neighbors(ctx, node, DirectionIn, opts.EdgeType)
		if err != nil {
			return err
		}
		frontier = append(frontier, nodes...)
	}

	for _, next := range frontier {
		if err := db.walk(ctx, next, depth+1, opts, visited, result); err != nil {
			return err
		}
	}
	return nil
}
