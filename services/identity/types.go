// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package identity

import (
	"github.com/saltline/driftwatch/services/identity/risk"
	"github.com/saltline/driftwatch/services/identity/tracker"
)

// ServiceVersion is the identity service version.
const ServiceVersion = "1.0.0"

// TrackRequest is the body of POST /v1/identity/track.
//
// A request carries either the plaintext identity triple or a sealed
// Payload, never both. When Payload is set the other identity fields are
// ignored and the triple is recovered by envelope decryption.
type TrackRequest struct {
	// UserID is the stable account identifier.
	UserID string `json:"userId"`

	// IP is the observed client address, v4 or v6.
	IP string `json:"ip"`

	// Fingerprint is the browser fingerprint hash.
	Fingerprint string `json:"fingerprint"`

	// Payload is a base64 NaCl anonymous box sealed to the service key.
	Payload string `json:"payload,omitempty"`

	// Timestamp optionally backdates the event, RFC 3339. Empty means
	// the server clock.
	Timestamp string `json:"timestamp,omitempty"`
}

// TrackResponse acknowledges an accepted connection event.
type TrackResponse struct {
	Recorded bool   `json:"recorded"`
	UserID   string `json:"userId"`
}

// ConnectionsResponse is the body of GET /v1/identity/users/:userId/connections.
type ConnectionsResponse struct {
	UserID string `json:"userId"`
	tracker.UserConnections
}

// RiskResponse is the body of GET /v1/identity/users/:userId/risk.
type RiskResponse struct {
	UserID string `json:"userId"`
	risk.Assessment
	AssessedAt       string `json:"assessedAt"`
	AlgorithmVersion string `json:"algorithmVersion"`
}

// GraphRequest holds the query parameters of GET /v1/identity/graph.
type GraphRequest struct {
	// Hours is the activity window. Zero or negative falls back to the
	// tracker default.
	Hours int `form:"hours"`

	// RiskThreshold drops users scoring below it. Zero keeps everyone.
	RiskThreshold int `form:"riskThreshold"`
}

// HealthResponse is the liveness probe body.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// ReadyResponse is the readiness probe body.
type ReadyResponse struct {
	Ready   bool `json:"ready"`
	StoreOK bool `json:"storeOk"`
}

// ErrorResponse is the uniform error body for all identity endpoints.
type ErrorResponse struct {
	// Error is a human-readable description.
	Error string `json:"error"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`

	// Details contains additional context when available.
	Details string `json:"details,omitempty"`
}
