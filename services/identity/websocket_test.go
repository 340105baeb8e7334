// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltline/driftwatch/services/identity/alerts"
	"github.com/saltline/driftwatch/services/identity/risk"
)

func TestHandleAlertsWS_DisabledWithoutHub(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/identity/alerts/ws", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "ALERTS_DISABLED", decodeBody[ErrorResponse](t, w).Code)
}

func TestHandleAlertsWS_StreamsAlerts(t *testing.T) {
	ts := newTestServer(t)

	hub := alerts.NewHub(alerts.DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	ts.handlers.WithHub(hub)

	srv := httptest.NewServer(ts.router)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/identity/alerts/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	// The subscription registers after the upgrade completes, so keep
	// publishing until a frame lands.
	assessment := risk.Assessment{
		Score:   85,
		Level:   risk.LevelHigh,
		Factors: []risk.Factor{{Score: 40, Reason: risk.ReasonRapidIPSwitching}},
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				hub.Publish(alerts.NewAlert("user-9", "203.0.113.9", assessment, time.Now()))
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got alerts.Alert
	require.NoError(t, conn.ReadJSON(&got))

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "user-9", got.UserID)
	assert.Equal(t, "203.0.113.9", got.IP)
	assert.Equal(t, 85, got.Score)
	assert.Equal(t, risk.LevelHigh, got.Level)
	require.Len(t, got.Factors, 1)
	assert.Equal(t, risk.ReasonRapidIPSwitching, got.Factors[0].Reason)
}

func TestOriginChecker(t *testing.T) {
	mkReq := func(origin, host string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "http://"+host+"/v1/identity/alerts/ws", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		return req
	}

	t.Run("empty list admits any origin", func(t *testing.T) {
		check := originChecker(nil)
		assert.True(t, check(mkReq("", "api.example.com")))
		assert.True(t, check(mkReq("https://anywhere.example", "api.example.com")))
	})

	t.Run("explicit list", func(t *testing.T) {
		check := originChecker([]string{"https://dash.example.com"})

		assert.True(t, check(mkReq("", "api.example.com")), "non-browser clients pass")
		assert.True(t, check(mkReq("https://dash.example.com", "api.example.com")), "listed origin passes")
		assert.True(t, check(mkReq("https://dash.example.com/", "api.example.com")), "trailing slash is normalized")
		assert.True(t, check(mkReq("https://api.example.com", "api.example.com")), "same host passes")
		assert.False(t, check(mkReq("https://evil.example", "api.example.com")), "unlisted origin fails")
	})
}
