// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package identity

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Websocket keepalive tuning. The server pings; a client that misses the
// pong window is assumed gone.
const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 512
)

// newUpgrader builds the websocket upgrader with an origin policy
// mirroring CORSMiddleware: an empty list admits any origin, an explicit
// list admits those origins plus same-host requests.
func newUpgrader(origins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(origins),
	}
}

// originChecker admits requests without an Origin header outright; those
// come from non-browser clients that already passed admission middleware.
func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		if _, ok := allowed[strings.TrimRight(origin, "/")]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

// HandleAlertsWS handles GET /v1/identity/alerts/ws.
//
// Description:
//
//	Upgrades the connection and streams risk alerts from the hub as JSON
//	frames until the client disconnects or the hub stops. The client is
//	not expected to send application data; its reads exist to surface
//	close and pong control frames.
//
// Response:
//
//	101 Switching Protocols on success
//	403 Forbidden: Origin not allowed (written by the upgrader)
//	503 Service Unavailable: Alert streaming disabled
func (h *Handlers) HandleAlertsWS(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleAlertsWS")

	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "Alert streaming is not enabled",
			Code:  "ALERTS_DISABLED",
		})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	sub, err := h.hub.Subscribe()
	if err != nil {
		logger.Warn("alert subscription failed", "error", err)
		return
	}
	defer sub.Close()

	logger.Info("alert subscriber connected", "remote", c.ClientIP())

	done := make(chan struct{})
	go func() {
		defer close(done)
		ws.SetReadLimit(wsMaxMessageSize)
		_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case alert, ok := <-sub.C:
			if !ok {
				// Hub stopped; tell the client this is deliberate.
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteWait))
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteJSON(alert); err != nil {
				logger.Info("alert subscriber disconnected", "error", err)
				return
			}

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			logger.Info("alert subscriber closed connection")
			return
		}
	}
}
