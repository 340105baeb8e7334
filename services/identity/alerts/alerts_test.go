// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltline/driftwatch/services/identity/risk"
)

func newRunningHub(t *testing.T, cfg Config) *Hub {
	t.Helper()
	h := NewHub(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(time.Second):
			t.Fatal("hub did not stop")
		}
	})
	return h
}

func highAlert(userID string) Alert {
	return NewAlert(userID, "1.1.1.1", risk.Assessment{
		Score:   80,
		Level:   risk.LevelHigh,
		Factors: []risk.Factor{{Score: 40, Reason: risk.ReasonRapidIPSwitching}},
	}, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func receive(t *testing.T, sub *Subscription) Alert {
	t.Helper()
	select {
	case a, ok := <-sub.C:
		require.True(t, ok, "subscription closed early")
		return a
	case <-time.After(time.Second):
		t.Fatal("no alert received")
		return Alert{}
	}
}

func TestNewAlert(t *testing.T) {
	a := highAlert("u1")

	assert.Len(t, a.ID, 26)
	assert.Equal(t, "u1", a.UserID)
	assert.Equal(t, 80, a.Score)
	assert.Equal(t, risk.LevelHigh, a.Level)
	assert.Equal(t, "2026-03-01T12:00:00.000Z", a.Timestamp)
}

func TestHub_FanOut(t *testing.T) {
	h := newRunningHub(t, DefaultConfig())

	sub1, err := h.Subscribe()
	require.NoError(t, err)
	sub2, err := h.Subscribe()
	require.NoError(t, err)

	want := highAlert("u1")
	h.Publish(want)

	assert.Equal(t, want, receive(t, sub1))
	assert.Equal(t, want, receive(t, sub2))
}

func TestHub_ThresholdGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threshold = risk.LevelHigh
	h := newRunningHub(t, cfg)

	sub, err := h.Subscribe()
	require.NoError(t, err)

	low := NewAlert("uLow", "", risk.Assessment{Score: 15, Level: risk.LevelLow}, time.Now())
	h.Publish(low)
	h.Publish(highAlert("uHigh"))

	// The first delivery must be the HIGH alert; the LOW one was gated.
	got := receive(t, sub)
	assert.Equal(t, "uHigh", got.UserID)
	assert.Empty(t, sub.C)
}

func TestHub_SetThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threshold = risk.LevelHigh
	h := newRunningHub(t, cfg)

	sub, err := h.Subscribe()
	require.NoError(t, err)

	medium := NewAlert("uMed", "", risk.Assessment{Score: 50, Level: risk.LevelMedium}, time.Now())
	h.Publish(medium)

	h.SetThreshold(risk.LevelMedium)
	h.Publish(medium)

	got := receive(t, sub)
	assert.Equal(t, "uMed", got.UserID)
	assert.Empty(t, sub.C, "the pre-reload publish must have been gated")
}

func TestHub_SlowSubscriberDropsAlerts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferSize = 1
	h := newRunningHub(t, cfg)

	sub, err := h.Subscribe()
	require.NoError(t, err)

	h.Publish(highAlert("u1"))
	h.Publish(highAlert("u2"))
	h.Publish(highAlert("u3"))

	require.Eventually(t, func() bool {
		return h.Dropped() == 2
	}, time.Second, 5*time.Millisecond)

	got := receive(t, sub)
	assert.Equal(t, "u1", got.UserID)
	assert.Empty(t, sub.C)
}

func TestSubscription_Close(t *testing.T) {
	h := newRunningHub(t, DefaultConfig())

	sub, err := h.Subscribe()
	require.NoError(t, err)
	sub.Close()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.C:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestHub_StopClosesSubscribers(t *testing.T) {
	h := NewHub(DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	sub, err := h.Subscribe()
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-sub.C:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed on shutdown")
	}

	_, err = h.Subscribe()
	assert.ErrorIs(t, err, ErrHubClosed)
}
