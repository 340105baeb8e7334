// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saltline/driftwatch/services/identity/graph"
	"github.com/saltline/driftwatch/services/identity/risk"
)

// connection pairs an outbound edge with its resolved endpoint node.
type connection struct {
	edge *graph.Edge
	node *graph.Node
}

// GetUserConnections returns every IP and fingerprint linked to userID.
// An unknown user yields empty lists, not an error.
func (t *Tracker) GetUserConnections(ctx context.Context, userID string) (*UserConnections, error) {
	out := &UserConnections{
		IPs:          make([]IPConnection, 0),
		Fingerprints: make([]FingerprintConnection, 0),
	}

	user, err := t.findByNaturalKey(ctx, PropUserID, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return out, nil
	}

	ipConns, fpConns, err := t.userNeighborhoods(ctx, user)
	if err != nil {
		return nil, err
	}

	for _, c := range ipConns {
		out.IPs = append(out.IPs, IPConnection{
			IP:    c.node.Properties.String(PropIP),
			Stats: edgeStats(c.edge),
		})
	}
	for _, c := range fpConns {
		out.Fingerprints = append(out.Fingerprints, FingerprintConnection{
			Fingerprint: c.node.Properties.String(PropFingerprint),
			Metadata:    c.node.Properties[PropMetadata],
			Stats:       edgeStats(c.edge),
		})
	}
	return out, nil
}

// HasUser reports whether a USER node exists for userID.
func (t *Tracker) HasUser(ctx context.Context, userID string) (bool, error) {
	user, err := t.findByNaturalKey(ctx, PropUserID, userID)
	if err != nil {
		return false, err
	}
	return user != nil, nil
}

// CalculateUserRisk scores a user's recent identity behavior. An unknown
// user scores zero.
func (t *Tracker) CalculateUserRisk(ctx context.Context, userID string) (risk.Assessment, error) {
	user, err := t.findByNaturalKey(ctx, PropUserID, userID)
	if err != nil {
		return risk.Assessment{}, err
	}
	if user == nil {
		return t.engine.Load().Evaluate(nil, nil, t.clock()), nil
	}

	ipConns, fpConns, err := t.userNeighborhoods(ctx, user)
	if err != nil {
		return risk.Assessment{}, err
	}
	return t.assess(ipConns, fpConns, t.clock()), nil
}

// GetConnectionGraph projects users active inside the window into a
// node-link graph.
//
// # Inputs
//
//   - opts: Window size and risk floor; see GraphOptions.
//
// # Outputs
//
//   - *ConnectionGraph: Deduplicated nodes and links. USER nodes carry
//     the assessment level and score; endpoint nodes carry the stats of
//     the edge that introduced them.
//
// Users are enumerated page by page until the type index is exhausted, so
// deployments larger than one page are still fully projected.
func (t *Tracker) GetConnectionGraph(ctx context.Context, opts GraphOptions) (*ConnectionGraph, error) {
	hours := opts.Hours
	if hours <= 0 {
		hours = DefaultGraphHours
	}
	now := t.clock()

	proj := &projection{
		now:       now,
		cutoff:    risk.FormatTimestamp(now.Add(-time.Duration(hours) * time.Hour)),
		threshold: opts.RiskThreshold,
		out: &ConnectionGraph{
			Nodes: make([]GraphNode, 0),
			Links: make([]GraphLink, 0),
		},
		nodes: make(map[string]struct{}),
		links: make(map[string]struct{}),
	}

	cursor := ""
	for {
		page, err := t.graph.Query(ctx, graph.Query{
			Type:   NodeTypeUser,
			Limit:  t.pageSize,
			Cursor: cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("enumerate users: %w", err)
		}
		for _, user := range page.Nodes {
			if err := t.projectUser(ctx, user, proj); err != nil {
				return nil, err
			}
		}
		if !page.HasMore {
			break
		}
		cursor = page.Cursor
	}

	t.log.DebugContext(ctx, "connection graph projected",
		"nodes", len(proj.out.Nodes),
		"links", len(proj.out.Links),
		"hours", hours,
	)
	return proj.out, nil
}

// projection accumulates deduplicated nodes and links for one graph call.
type projection struct {
	now       time.Time
	cutoff    string
	threshold int
	out       *ConnectionGraph
	nodes     map[string]struct{}
	links     map[string]struct{}
}

func (p *projection) addNode(n GraphNode) {
	if _, ok := p.nodes[n.ID]; ok {
		return
	}
	p.nodes[n.ID] = struct{}{}
	p.out.Nodes = append(p.out.Nodes, n)
}

func (p *projection) addLink(l GraphLink) {
	key := l.Source + "-" + l.Target
	if _, ok := p.links[key]; ok {
		return
	}
	p.links[key] = struct{}{}
	p.out.Links = append(p.out.Links, l)
}

// projectUser emits one user and its windowed edges into the projection.
// Users scoring under the threshold, or with no edge inside the window,
// are dropped entirely.
func (t *Tracker) projectUser(ctx context.Context, user *graph.Node, proj *projection) error {
	ipConns, fpConns, err := t.userNeighborhoods(ctx, user)
	if err != nil {
		return err
	}

	assessment := t.assess(ipConns, fpConns, proj.now)
	if assessment.Score < proj.threshold {
		return nil
	}

	recentIPs := recentOnly(ipConns, proj.cutoff)
	recentFPs := recentOnly(fpConns, proj.cutoff)
	if len(recentIPs)+len(recentFPs) == 0 {
		return nil
	}

	score := assessment.Score
	proj.addNode(GraphNode{
		ID:        user.ID,
		Type:      NodeTypeUser,
		Label:     user.Properties.String(PropUserID),
		Risk:      assessment.Level,
		RiskScore: &score,
		Stats: Stats{
			FirstSeen: user.Properties.String(PropFirstSeen),
			LastSeen:  user.Properties.String(PropLastSeen),
			Count:     len(ipConns) + len(fpConns),
		},
	})

	for _, c := range recentIPs {
		stats := edgeStats(c.edge)
		proj.addNode(GraphNode{
			ID:    c.node.ID,
			Type:  NodeTypeIP,
			Label: c.node.Properties.String(PropIP),
			Stats: stats,
		})
		proj.addLink(GraphLink{
			Source: user.ID,
			Target: c.node.ID,
			Type:   EdgeTypeUsesIP,
			Stats:  stats,
		})
	}
	for _, c := range recentFPs {
		stats := edgeStats(c.edge)
		proj.addNode(GraphNode{
			ID:       c.node.ID,
			Type:     NodeTypeFingerprint,
			Label:    c.node.Properties.String(PropFingerprint),
			Metadata: c.node.Properties[PropMetadata],
			Stats:    stats,
		})
		proj.addLink(GraphLink{
			Source: user.ID,
			Target: c.node.ID,
			Type:   EdgeTypeUsesFingerprint,
			Stats:  stats,
		})
	}
	return nil
}

// userNeighborhoods fetches both edge neighborhoods of a user
// concurrently.
func (t *Tracker) userNeighborhoods(ctx context.Context, user *graph.Node) ([]connection, []connection, error) {
	var ipConns, fpConns []connection
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ipConns, err = t.outgoingConnections(gctx, user, EdgeTypeUsesIP)
		return err
	})
	g.Go(func() error {
		var err error
		fpConns, err = t.outgoingConnections(gctx, user, EdgeTypeUsesFingerprint)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return ipConns, fpConns, nil
}

// outgoingConnections resolves the user's outbound edges of one type
// together with their endpoints, preserving adjacency order. Edges or
// endpoints that no longer resolve are skipped.
func (t *Tracker) outgoingConnections(ctx context.Context, user *graph.Node, edgeType string) ([]connection, error) {
	edges, err := t.fetchEdges(ctx, user.OutEdges)
	if err != nil {
		return nil, err
	}

	nodes := make([]*graph.Node, len(edges))
	g, gctx := errgroup.WithContext(ctx)
	for i, edge := range edges {
		if edge == nil || edge.Type != edgeType {
			continue
		}
		g.Go(func() error {
			n, err := t.graph.GetNode(gctx, edge.ToNodeID)
			if err != nil {
				if errors.Is(err, graph.ErrNodeNotFound) {
					return nil
				}
				return fmt.Errorf("load node %s: %w", edge.ToNodeID, err)
			}
			nodes[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	conns := make([]connection, 0, len(edges))
	for i, edge := range edges {
		if edge == nil || edge.Type != edgeType || nodes[i] == nil {
			continue
		}
		conns = append(conns, connection{edge: edge, node: nodes[i]})
	}
	return conns, nil
}

// assess runs the risk engine over resolved neighborhoods.
func (t *Tracker) assess(ipConns, fpConns []connection, now time.Time) risk.Assessment {
	return t.engine.Load().Evaluate(
		observations(ipConns, PropIP),
		observations(fpConns, PropFingerprint),
		now,
	)
}

// observations projects connections into engine input: the endpoint's
// natural key and the edge's last occurrence.
func observations(conns []connection, keyProp string) []risk.Observation {
	obs := make([]risk.Observation, 0, len(conns))
	for _, c := range conns {
		obs = append(obs, risk.Observation{
			Key:      c.node.Properties.String(keyProp),
			LastSeen: c.edge.Properties.String(PropLastSeen),
		})
	}
	return obs
}

// recentOnly keeps connections whose edge lastSeen falls at or after the
// cutoff.
func recentOnly(conns []connection, cutoff string) []connection {
	recent := make([]connection, 0, len(conns))
	for _, c := range conns {
		if c.edge.Properties.String(PropLastSeen) >= cutoff {
			recent = append(recent, c)
		}
	}
	return recent
}

func edgeStats(e *graph.Edge) Stats {
	return Stats{
		FirstSeen: e.Properties.String(PropFirstSeen),
		LastSeen:  e.Properties.String(PropLastSeen),
		Count:     e.Properties.Int(PropCount),
	}
}
