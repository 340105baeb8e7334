// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tracker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltline/driftwatch/services/identity/risk"
)

func nodeByLabel(g *ConnectionGraph, label string) *GraphNode {
	for i := range g.Nodes {
		if g.Nodes[i].Label == label {
			return &g.Nodes[i]
		}
	}
	return nil
}

func TestGetUserConnections(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, tr.RecordConnection(ctx, "u1", "1.1.1.1", "fpA", chromeUA, at))
	require.NoError(t, tr.RecordConnection(ctx, "u1", "2.2.2.2", "fpA", chromeUA, at.Add(time.Hour)))

	t.Run("known user", func(t *testing.T) {
		conns, err := tr.GetUserConnections(ctx, "u1")
		require.NoError(t, err)

		require.Len(t, conns.IPs, 2)
		assert.Equal(t, "1.1.1.1", conns.IPs[0].IP)
		assert.Equal(t, Stats{
			FirstSeen: risk.FormatTimestamp(at),
			LastSeen:  risk.FormatTimestamp(at),
			Count:     1,
		}, conns.IPs[0].Stats)
		assert.Equal(t, "2.2.2.2", conns.IPs[1].IP)

		require.Len(t, conns.Fingerprints, 1)
		fp := conns.Fingerprints[0]
		assert.Equal(t, "fpA", fp.Fingerprint)
		assert.NotNil(t, fp.Metadata)
		assert.Equal(t, 2, fp.Stats.Count)
		assert.Equal(t, risk.FormatTimestamp(at), fp.Stats.FirstSeen)
		assert.Equal(t, risk.FormatTimestamp(at.Add(time.Hour)), fp.Stats.LastSeen)
	})

	t.Run("unknown user yields empty lists", func(t *testing.T) {
		conns, err := tr.GetUserConnections(ctx, "nobody")
		require.NoError(t, err)
		require.NotNil(t, conns.IPs)
		require.NotNil(t, conns.Fingerprints)
		assert.Empty(t, conns.IPs)
		assert.Empty(t, conns.Fingerprints)
	})

	t.Run("existence check", func(t *testing.T) {
		ok, err := tr.HasUser(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = tr.HasUser(ctx, "nobody")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestCalculateUserRisk_UnknownUser(t *testing.T) {
	tr, _ := newTestTracker(t)

	a, err := tr.CalculateUserRisk(context.Background(), "nobody")
	require.NoError(t, err)

	assert.Equal(t, 0, a.Score)
	assert.Equal(t, risk.LevelLow, a.Level)
	assert.Empty(t, a.Factors)
}

func TestCalculateUserRisk_MultipleIPsOverDay(t *testing.T) {
	tr, clk := newTestTracker(t)
	ctx := context.Background()
	base := clk.now.Add(-3 * time.Hour)

	for i, ip := range []string{"1.1.1.1", "1.1.1.2", "1.1.1.3", "1.1.1.4"} {
		at := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, tr.RecordConnection(ctx, "u1", ip, "fpA", chromeUA, at))
	}

	a, err := tr.CalculateUserRisk(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 30, a.Score)
	assert.Equal(t, risk.LevelLow, a.Level)
	require.Len(t, a.Factors, 1)
	assert.Equal(t, risk.ReasonMultipleIPs, a.Factors[0].Reason)
}

func TestCalculateUserRisk_RapidIPSwitching(t *testing.T) {
	tr, clk := newTestTracker(t)
	ctx := context.Background()
	base := clk.now.Add(-30 * time.Second)

	for i, ip := range []string{"2.2.2.1", "2.2.2.2", "2.2.2.3"} {
		at := base.Add(time.Duration(i) * 10 * time.Second)
		require.NoError(t, tr.RecordConnection(ctx, "u1", ip, "fpA", chromeUA, at))
	}

	a, err := tr.CalculateUserRisk(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 40, a.Score)
	assert.Equal(t, risk.LevelMedium, a.Level)
	require.Len(t, a.Factors, 1)
	assert.Equal(t, risk.ReasonRapidIPSwitching, a.Factors[0].Reason)
}

func TestSetEngine_SwapChangesScoring(t *testing.T) {
	tr, clk := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.RecordConnection(ctx, "u1", "1.1.1.1", "fpA", chromeUA, clk.now.Add(-2*time.Hour)))
	require.NoError(t, tr.RecordConnection(ctx, "u1", "2.2.2.2", "fpA", chromeUA, clk.now))

	a, err := tr.CalculateUserRisk(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, a.Score)

	cfg := risk.DefaultConfig()
	cfg.MultiIPThreshold = 1
	tr.SetEngine(risk.NewEngine(cfg))

	a, err = tr.CalculateUserRisk(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 20, a.Score)
	require.Len(t, a.Factors, 1)
	assert.Equal(t, risk.ReasonMultipleIPs, a.Factors[0].Reason)
}

func TestGetConnectionGraph_WindowFilter(t *testing.T) {
	tr, clk := newTestTracker(t)
	ctx := context.Background()

	// uStale has no activity inside the window, uBoundary sits exactly on
	// the cutoff, uMixed has one stale and one fresh edge.
	require.NoError(t, tr.RecordConnection(ctx, "uStale", "3.3.3.1", "fpS", chromeUA, clk.now.Add(-25*time.Hour)))
	require.NoError(t, tr.RecordConnection(ctx, "uBoundary", "3.3.3.2", "fpB", chromeUA, clk.now.Add(-24*time.Hour)))
	require.NoError(t, tr.RecordConnection(ctx, "uMixed", "3.3.3.3", "fpM", chromeUA, clk.now.Add(-25*time.Hour)))
	require.NoError(t, tr.RecordConnection(ctx, "uMixed", "3.3.3.4", "fpM", chromeUA, clk.now.Add(-time.Hour)))

	g, err := tr.GetConnectionGraph(ctx, GraphOptions{})
	require.NoError(t, err)

	t.Run("stale user dropped entirely", func(t *testing.T) {
		assert.Nil(t, nodeByLabel(g, "uStale"))
		assert.Nil(t, nodeByLabel(g, "3.3.3.1"))
	})

	t.Run("edge exactly at cutoff survives", func(t *testing.T) {
		require.NotNil(t, nodeByLabel(g, "uBoundary"))
		assert.NotNil(t, nodeByLabel(g, "3.3.3.2"))
	})

	t.Run("stale edges dropped, user count not clipped", func(t *testing.T) {
		user := nodeByLabel(g, "uMixed")
		require.NotNil(t, user)
		assert.Equal(t, 3, user.Stats.Count)
		assert.Nil(t, nodeByLabel(g, "3.3.3.3"))
		assert.NotNil(t, nodeByLabel(g, "3.3.3.4"))

		links := 0
		for _, l := range g.Links {
			if l.Source == user.ID {
				links++
			}
		}
		assert.Equal(t, 2, links)
	})
}

func TestGetConnectionGraph_ActiveUserProjection(t *testing.T) {
	tr, clk := newTestTracker(t)
	ctx := context.Background()
	at := clk.now.Add(-time.Hour)

	require.NoError(t, tr.RecordConnection(ctx, "u1", "1.1.1.1", "fpA", chromeUA, at))

	g, err := tr.GetConnectionGraph(ctx, GraphOptions{})
	require.NoError(t, err)

	require.Len(t, g.Nodes, 3)
	require.Len(t, g.Links, 2)

	user := g.Nodes[0]
	assert.Equal(t, NodeTypeUser, user.Type)
	assert.Equal(t, "u1", user.Label)
	assert.Equal(t, risk.LevelLow, user.Risk)
	require.NotNil(t, user.RiskScore)
	assert.Equal(t, 0, *user.RiskScore)
	assert.Equal(t, 2, user.Stats.Count)

	ipNode := nodeByLabel(g, "1.1.1.1")
	require.NotNil(t, ipNode)
	assert.Equal(t, NodeTypeIP, ipNode.Type)
	assert.Nil(t, ipNode.RiskScore)
	assert.Equal(t, 1, ipNode.Stats.Count)
	assert.Equal(t, risk.FormatTimestamp(at), ipNode.Stats.LastSeen)

	fpNode := nodeByLabel(g, "fpA")
	require.NotNil(t, fpNode)
	assert.Equal(t, NodeTypeFingerprint, fpNode.Type)
	assert.NotNil(t, fpNode.Metadata)

	types := map[string]string{}
	for _, l := range g.Links {
		assert.Equal(t, user.ID, l.Source)
		types[l.Type] = l.Target
		assert.Equal(t, 1, l.Stats.Count)
	}
	assert.Equal(t, ipNode.ID, types[EdgeTypeUsesIP])
	assert.Equal(t, fpNode.ID, types[EdgeTypeUsesFingerprint])
}

func TestGetConnectionGraph_SharedIPDeduplicated(t *testing.T) {
	tr, clk := newTestTracker(t)
	ctx := context.Background()
	at := clk.now.Add(-time.Hour)

	require.NoError(t, tr.RecordConnection(ctx, "u1", "7.7.7.7", "fp1", chromeUA, at))
	require.NoError(t, tr.RecordConnection(ctx, "u2", "7.7.7.7", "fp2", chromeUA, at))

	g, err := tr.GetConnectionGraph(ctx, GraphOptions{})
	require.NoError(t, err)

	assert.Len(t, g.Nodes, 5)
	assert.Len(t, g.Links, 4)

	shared := 0
	for _, n := range g.Nodes {
		if n.Label == "7.7.7.7" {
			shared++
		}
	}
	assert.Equal(t, 1, shared)

	ipNode := nodeByLabel(g, "7.7.7.7")
	inbound := 0
	for _, l := range g.Links {
		if l.Target == ipNode.ID {
			inbound++
		}
	}
	assert.Equal(t, 2, inbound)
}

func TestGetConnectionGraph_RiskThreshold(t *testing.T) {
	tr, clk := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.RecordConnection(ctx, "uCalm", "5.5.5.1", "fpC", chromeUA, clk.now.Add(-time.Hour)))
	for i, ip := range []string{"6.6.6.1", "6.6.6.2", "6.6.6.3"} {
		at := clk.now.Add(-30 * time.Second).Add(time.Duration(i) * 10 * time.Second)
		require.NoError(t, tr.RecordConnection(ctx, "uRisky", ip, "fpR", chromeUA, at))
	}

	g, err := tr.GetConnectionGraph(ctx, GraphOptions{RiskThreshold: 10})
	require.NoError(t, err)

	assert.Nil(t, nodeByLabel(g, "uCalm"))

	user := nodeByLabel(g, "uRisky")
	require.NotNil(t, user)
	assert.Equal(t, risk.LevelMedium, user.Risk)
	require.NotNil(t, user.RiskScore)
	assert.Equal(t, 40, *user.RiskScore)

	// uRisky plus three IPs and one fingerprint.
	assert.Len(t, g.Nodes, 5)
	assert.Len(t, g.Links, 4)
}

func TestGetConnectionGraph_PagesAllUsers(t *testing.T) {
	tr, clk := newTestTracker(t, WithPageSize(10))
	ctx := context.Background()
	at := clk.now.Add(-time.Hour)

	// Three full pages plus a short tail.
	total := 35
	for i := 0; i < total; i++ {
		userID := fmt.Sprintf("u%03d", i)
		require.NoError(t, tr.RecordConnection(ctx, userID, "8.8.8.8", "fpShared", chromeUA, at))
	}

	g, err := tr.GetConnectionGraph(ctx, GraphOptions{})
	require.NoError(t, err)

	users := 0
	for _, n := range g.Nodes {
		if n.Type == NodeTypeUser {
			users++
		}
	}
	assert.Equal(t, total, users)
	assert.Len(t, g.Nodes, total+2)
	assert.Len(t, g.Links, 2*total)
}
