// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package identity is the HTTP boundary of the driftwatch service.
//
// It exposes connection ingest, per-user projections, risk assessment,
// the connection graph, and the realtime alert stream over a Gin router.
// Handlers validate inputs, translate tracker errors into uniform
// ErrorResponse bodies, and record OTel metrics; all graph and scoring
// semantics live below in the tracker.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/saltline/driftwatch/pkg/validation"
	"github.com/saltline/driftwatch/services/identity/alerts"
	"github.com/saltline/driftwatch/services/identity/envelope"
	"github.com/saltline/driftwatch/services/identity/middleware"
	"github.com/saltline/driftwatch/services/identity/risk"
	"github.com/saltline/driftwatch/services/identity/storage"
	"github.com/saltline/driftwatch/services/identity/telemetry"
	"github.com/saltline/driftwatch/services/identity/tracker"
)

// assessTimeout bounds the post-ingest risk assessment that feeds the
// alert hub. It runs detached from the request, so it needs its own
// deadline.
const assessTimeout = 10 * time.Second

// readinessKey is the store key probed by the readiness handler. It sits
// outside the graph key namespaces and is never written.
const readinessKey = "health:ping"

// Handlers contains the HTTP handlers for the identity service.
type Handlers struct {
	tracker  *tracker.Tracker
	store    storage.Store
	hub      *alerts.Hub
	opener   *envelope.Opener
	limiter  *middleware.RateLimiter
	metrics  *telemetry.Metrics
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewHandlers creates handlers over a tracker and its backing store. The
// store handle is used only for readiness probing.
func NewHandlers(t *tracker.Tracker, store storage.Store) *Handlers {
	return &Handlers{
		tracker:  t,
		store:    store,
		upgrader: newUpgrader(nil),
		log:      slog.Default(),
	}
}

// WithHub enables the realtime alert stream. Every accepted ingest is
// scored in the background and the assessment handed to the hub.
func (h *Handlers) WithHub(hub *alerts.Hub) *Handlers {
	h.hub = hub
	return h
}

// WithOpener enables sealed ingest payloads.
func (h *Handlers) WithOpener(o *envelope.Opener) *Handlers {
	h.opener = o
	return h
}

// WithRateLimiter throttles the ingest route per client IP.
func (h *Handlers) WithRateLimiter(rl *middleware.RateLimiter) *Handlers {
	h.limiter = rl
	return h
}

// WithMetrics enables OTel instrument recording.
func (h *Handlers) WithMetrics(m *telemetry.Metrics) *Handlers {
	h.metrics = m
	return h
}

// WithAllowedOrigins restricts websocket upgrades to the given browser
// origins, mirroring the CORS policy. Empty admits any origin.
func (h *Handlers) WithAllowedOrigins(origins []string) *Handlers {
	h.upgrader = newUpgrader(origins)
	return h
}

// WithLogger replaces the default logger.
func (h *Handlers) WithLogger(log *slog.Logger) *Handlers {
	h.log = log
	return h
}

// HandleTrack handles POST /v1/identity/track.
//
// Description:
//
//	Ingests one observed connection. The body carries either the
//	plaintext {userId, ip, fingerprint} triple or a sealed payload when
//	envelope decryption is configured. The user agent comes from the
//	User-Agent header. An optional timestamp backdates the event.
//
// Response:
//
//	202 Accepted: TrackResponse
//	400 Bad Request: Malformed body, failed validation, or a sealed
//	payload that does not decrypt
//	500 Internal Server Error: Storage failure
func (h *Handlers) HandleTrack(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleTrack")

	var req TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if req.Payload != "" {
		if h.opener == nil {
			logger.Warn("sealed payload received but no envelope key is configured")
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "Sealed payloads are not enabled",
				Code:  "ENVELOPE_DISABLED",
			})
			return
		}
		p, err := h.opener.OpenBase64(req.Payload)
		if err != nil {
			if errors.Is(err, envelope.ErrDecryptFailed) {
				logger.Warn("sealed payload rejected")
				c.JSON(http.StatusBadRequest, ErrorResponse{
					Error: "Sealed payload did not decrypt",
					Code:  "ENVELOPE_INVALID",
				})
				return
			}
			logger.Error("envelope decryption failed", "error", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: "Envelope decryption unavailable",
				Code:  "ENVELOPE_FAILED",
			})
			return
		}
		req.UserID, req.IP, req.Fingerprint = p.UserID, p.IP, p.Fingerprint
	}

	userAgent := c.Request.UserAgent()
	if err := validateIdentity(req.UserID, req.IP, req.Fingerprint, userAgent); err != nil {
		logger.Warn("identity rejected", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid identity fields",
			Code:    "VALIDATION_FAILED",
			Details: err.Error(),
		})
		return
	}

	var at time.Time
	if req.Timestamp != "" {
		parsed, err := risk.ParseTimestamp(req.Timestamp)
		if err != nil {
			logger.Warn("timestamp rejected", "timestamp", req.Timestamp)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid timestamp",
				Code:    "INVALID_TIMESTAMP",
				Details: "timestamp must be RFC 3339",
			})
			return
		}
		at = parsed
	}

	// Tag the server span so traces group by subject user.
	trace.SpanFromContext(c.Request.Context()).SetAttributes(
		attribute.String("identity.user_id", req.UserID),
	)

	start := time.Now()
	err := h.tracker.RecordConnection(c.Request.Context(), req.UserID, req.IP, req.Fingerprint, userAgent, at)
	h.recordIngest(c.Request.Context(), start, err)
	if err != nil {
		logger.Error("record connection failed", "userId", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to record connection",
			Code:  "TRACK_FAILED",
		})
		return
	}

	if h.hub != nil {
		go h.assessAndAlert(req.UserID, req.IP, requestID)
	}

	c.JSON(http.StatusAccepted, TrackResponse{Recorded: true, UserID: req.UserID})
}

// HandleConnections handles GET /v1/identity/users/:userId/connections.
//
// Description:
//
//	Returns every IP and fingerprint linked to the user with per-edge
//	statistics. Unknown users yield empty lists, not 404: absence of
//	history is an answer.
//
// Response:
//
//	200 OK: ConnectionsResponse
//	400 Bad Request: Malformed user id
//	500 Internal Server Error: Storage failure
func (h *Handlers) HandleConnections(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleConnections")

	userID := c.Param("userId")
	if err := validation.ValidateUserID(userID); err != nil {
		logger.Warn("user id rejected", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid user id",
			Code:    "VALIDATION_FAILED",
			Details: err.Error(),
		})
		return
	}

	conns, err := h.tracker.GetUserConnections(c.Request.Context(), userID)
	if err != nil {
		logger.Error("connection lookup failed", "userId", userID, "error", err)
		h.countError(c.Request.Context(), "connections")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to load connections",
			Code:  "CONNECTIONS_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, ConnectionsResponse{
		UserID:          userID,
		UserConnections: *conns,
	})
}

// HandleRisk handles GET /v1/identity/users/:userId/risk.
//
// Description:
//
//	Scores the user's recent identity behavior. Unlike the connections
//	projection this endpoint distinguishes unknown users: a risk score
//	for a user that was never seen would be misleading, so it is 404.
//
// Response:
//
//	200 OK: RiskResponse
//	400 Bad Request: Malformed user id
//	404 Not Found: Unknown user
//	500 Internal Server Error: Storage failure
func (h *Handlers) HandleRisk(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleRisk")

	userID := c.Param("userId")
	if err := validation.ValidateUserID(userID); err != nil {
		logger.Warn("user id rejected", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid user id",
			Code:    "VALIDATION_FAILED",
			Details: err.Error(),
		})
		return
	}

	known, err := h.tracker.HasUser(c.Request.Context(), userID)
	if err != nil {
		logger.Error("user lookup failed", "userId", userID, "error", err)
		h.countError(c.Request.Context(), "risk")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to assess risk",
			Code:  "RISK_FAILED",
		})
		return
	}
	if !known {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "User not found",
			Code:  "USER_NOT_FOUND",
		})
		return
	}

	trace.SpanFromContext(c.Request.Context()).SetAttributes(
		attribute.String("identity.user_id", userID),
	)

	start := time.Now()
	assessment, err := h.tracker.CalculateUserRisk(c.Request.Context(), userID)
	h.recordAssessment(c.Request.Context(), start, assessment, err)
	if err != nil {
		logger.Error("risk assessment failed", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to assess risk",
			Code:  "RISK_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, RiskResponse{
		UserID:           userID,
		Assessment:       assessment,
		AssessedAt:       risk.FormatTimestamp(time.Now()),
		AlgorithmVersion: risk.AlgorithmVersion,
	})
}

// HandleGraph handles GET /v1/identity/graph.
//
// Description:
//
//	Projects users active inside the window into a node-link graph for
//	visualization. Optional riskThreshold drops users scoring below it.
//
// Query Parameters:
//
//	hours: Activity window in hours (default 24).
//	riskThreshold: Minimum score to include a user (default 0).
//
// Response:
//
//	200 OK: tracker.ConnectionGraph
//	400 Bad Request: Non-numeric parameter
//	500 Internal Server Error: Storage failure
func (h *Handlers) HandleGraph(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleGraph")

	var req GraphRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		logger.Warn("invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid query parameters",
			Code:  "INVALID_PARAMETER",
		})
		return
	}

	start := time.Now()
	graph, err := h.tracker.GetConnectionGraph(c.Request.Context(), tracker.GraphOptions{
		Hours:         req.Hours,
		RiskThreshold: req.RiskThreshold,
	})
	h.recordProjection(c.Request.Context(), start, err)
	if err != nil {
		logger.Error("graph projection failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to project connection graph",
			Code:  "GRAPH_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, graph)
}

// HandleHealth handles GET /health. Always 200 while the process runs.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: "driftwatch",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /ready.
//
// Description:
//
//	Probes the store with a point read. A missing key is a healthy
//	answer; only transport-level failure marks the service unready.
//
// Response:
//
//	200 OK: ReadyResponse (Ready=true)
//	503 Service Unavailable: ReadyResponse (Ready=false)
func (h *Handlers) HandleReady(c *gin.Context) {
	err := h.pingStore(c.Request.Context())
	resp := ReadyResponse{Ready: err == nil, StoreOK: err == nil}
	if err != nil {
		h.log.Warn("readiness probe failed", "error", err)
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// pingStore verifies the store answers point reads. ErrKeyNotFound is the
// expected result; anything else is a real failure.
func (h *Handlers) pingStore(ctx context.Context) error {
	_, err := h.store.Get(ctx, readinessKey)
	if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		return err
	}
	return nil
}

// assessAndAlert scores a user after an accepted ingest and hands the
// assessment to the alert hub. It runs detached from the request, so hub
// filtering and delivery never add ingest latency.
func (h *Handlers) assessAndAlert(userID, ip, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), assessTimeout)
	defer cancel()

	start := time.Now()
	assessment, err := h.tracker.CalculateUserRisk(ctx, userID)
	h.recordAssessment(ctx, start, assessment, err)
	if err != nil {
		h.log.Warn("post-ingest assessment failed",
			"request_id", requestID,
			"userId", userID,
			"error", err,
		)
		return
	}

	alert := alerts.NewAlert(userID, ip, assessment, time.Now())
	h.hub.Publish(alert)
	if h.metrics != nil {
		h.metrics.AlertsPublishedTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("level", string(assessment.Level)),
		))
	}
}

// validateIdentity checks the full ingest tuple, first failure wins.
func validateIdentity(userID, ip, fingerprint, userAgent string) error {
	if err := validation.ValidateUserID(userID); err != nil {
		return err
	}
	if err := validation.ValidateIP(ip); err != nil {
		return err
	}
	if err := validation.ValidateFingerprint(fingerprint); err != nil {
		return err
	}
	return validation.ValidateUserAgent(userAgent)
}

// getOrCreateRequestID returns the request id minted by the middleware,
// or a fresh one when the route is wired without it.
func getOrCreateRequestID(c *gin.Context) string {
	if id := middleware.RequestID(c); id != "" {
		return id
	}
	return uuid.NewString()
}

// --- Metric Recording ---

func (h *Handlers) recordIngest(ctx context.Context, start time.Time, err error) {
	if h.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", statusOf(err)))
	h.metrics.ConnectionsRecordedTotal.Add(ctx, 1, attrs)
	h.metrics.RecordDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}

func (h *Handlers) recordAssessment(ctx context.Context, start time.Time, a risk.Assessment, err error) {
	if h.metrics == nil {
		return
	}
	if err != nil {
		h.countError(ctx, "risk")
		return
	}
	h.metrics.RiskAssessmentsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("level", string(a.Level)),
	))
	h.metrics.RiskAssessmentDuration.Record(ctx, time.Since(start).Seconds())
}

func (h *Handlers) recordProjection(ctx context.Context, start time.Time, err error) {
	if h.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", statusOf(err)))
	h.metrics.GraphProjectionsTotal.Add(ctx, 1, attrs)
	h.metrics.GraphProjectionDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}

func (h *Handlers) countError(ctx context.Context, component string) {
	if h.metrics == nil {
		return
	}
	h.metrics.ErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", component),
	))
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
