// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package identity

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all identity routes with the router group.
//
// Description:
//
//	Registers the /v1/identity/* endpoints with the given Gin router
//	group. The group should already carry the shared middleware (CORS,
//	tracing, admission); the ingest rate limiter is applied here because
//	it guards the track route only.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/identity/track - Record a connection event
//	GET  /v1/identity/users/:userId/connections - IPs and fingerprints of a user
//	GET  /v1/identity/users/:userId/risk - Risk assessment for a user
//	GET  /v1/identity/graph - Recent-activity connection graph
//	GET  /v1/identity/alerts/ws - Realtime alert stream (websocket)
//
// Example:
//
//	handlers := identity.NewHandlers(trk, store).WithHub(hub)
//
//	v1 := router.Group("/v1")
//	identity.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	id := rg.Group("/identity")
	{
		id.POST("/track", handlers.trackChain()...)
		id.GET("/users/:userId/connections", handlers.HandleConnections)
		id.GET("/users/:userId/risk", handlers.HandleRisk)
		id.GET("/graph", handlers.HandleGraph)
		id.GET("/alerts/ws", handlers.HandleAlertsWS)
	}
}

// RegisterHealthRoutes registers the liveness and readiness probes. They
// sit outside the versioned group so they bypass admission middleware.
func RegisterHealthRoutes(r gin.IRoutes, handlers *Handlers) {
	r.GET("/health", handlers.HandleHealth)
	r.GET("/ready", handlers.HandleReady)
}

// trackChain prepends the ingest rate limiter when one is configured.
func (h *Handlers) trackChain() []gin.HandlerFunc {
	if h.limiter == nil {
		return []gin.HandlerFunc{h.HandleTrack}
	}
	return []gin.HandlerFunc{h.limiter.Middleware(), h.HandleTrack}
}
