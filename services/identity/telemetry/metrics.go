// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for the identity service.
//
// Description:
//
//	Provides standard counters and histograms for HTTP requests,
//	connection recording, risk assessment, and graph projection.
//	All metrics use the "driftwatch_" prefix for consistent naming.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- HTTP Metrics ---

	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal metric.Int64Counter

	// HTTPRequestDuration records HTTP request duration in seconds.
	HTTPRequestDuration metric.Float64Histogram

	// HTTPActiveRequests tracks currently active HTTP requests.
	HTTPActiveRequests metric.Int64UpDownCounter

	// --- Tracking Metrics ---

	// ConnectionsRecordedTotal counts recorded connection events by status.
	ConnectionsRecordedTotal metric.Int64Counter

	// RecordDuration records connection write duration in seconds.
	RecordDuration metric.Float64Histogram

	// --- Risk Metrics ---

	// RiskAssessmentsTotal counts risk assessments by resulting level.
	RiskAssessmentsTotal metric.Int64Counter

	// RiskAssessmentDuration records risk assessment duration in seconds.
	RiskAssessmentDuration metric.Float64Histogram

	// AlertsPublishedTotal counts alerts handed to the alert hub.
	AlertsPublishedTotal metric.Int64Counter

	// AlertsDropped reports alerts lost to slow or absent consumers.
	// Registered separately via RegisterAlertsDropped.
	AlertsDropped metric.Int64ObservableCounter

	// --- Graph Metrics ---

	// GraphProjectionsTotal counts connection graph projections by status.
	GraphProjectionsTotal metric.Int64Counter

	// GraphProjectionDuration records graph projection duration in seconds.
	// Projections walk every user, so buckets run long.
	GraphProjectionDuration metric.Float64Histogram

	// --- Error Metrics ---

	// ErrorsTotal counts total errors by component.
	ErrorsTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
//
// Inputs:
//
//	meter - The OTel meter to use for metric registration.
//
// Outputs:
//
//	*Metrics - The metrics instance with all instruments initialized.
//	error - Non-nil if metric registration fails.
//
// Thread Safety: Safe for concurrent use after creation.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	// --- HTTP Metrics ---
	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"driftwatch_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total: %w", err)
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"driftwatch_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_request_duration: %w", err)
	}

	m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"driftwatch_http_active_requests",
		metric.WithDescription("Currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_active_requests: %w", err)
	}

	// --- Tracking Metrics ---
	m.ConnectionsRecordedTotal, err = meter.Int64Counter(
		"driftwatch_connections_recorded_total",
		metric.WithDescription("Total connection events recorded"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create connections_recorded_total: %w", err)
	}

	m.RecordDuration, err = meter.Float64Histogram(
		"driftwatch_record_duration_seconds",
		metric.WithDescription("Connection write duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("create record_duration: %w", err)
	}

	// --- Risk Metrics ---
	m.RiskAssessmentsTotal, err = meter.Int64Counter(
		"driftwatch_risk_assessments_total",
		metric.WithDescription("Total risk assessments by level"),
		metric.WithUnit("{assessment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create risk_assessments_total: %w", err)
	}

	m.RiskAssessmentDuration, err = meter.Float64Histogram(
		"driftwatch_risk_assessment_duration_seconds",
		metric.WithDescription("Risk assessment duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("create risk_assessment_duration: %w", err)
	}

	m.AlertsPublishedTotal, err = meter.Int64Counter(
		"driftwatch_alerts_published_total",
		metric.WithDescription("Total alerts handed to the alert hub"),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create alerts_published_total: %w", err)
	}

	// --- Graph Metrics ---
	m.GraphProjectionsTotal, err = meter.Int64Counter(
		"driftwatch_graph_projections_total",
		metric.WithDescription("Total connection graph projections"),
		metric.WithUnit("{projection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create graph_projections_total: %w", err)
	}

	m.GraphProjectionDuration, err = meter.Float64Histogram(
		"driftwatch_graph_projection_duration_seconds",
		metric.WithDescription("Connection graph projection duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, fmt.Errorf("create graph_projection_duration: %w", err)
	}

	// --- Error Metrics ---
	m.ErrorsTotal, err = meter.Int64Counter(
		"driftwatch_errors_total",
		metric.WithDescription("Total errors by component"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors_total: %w", err)
	}

	return m, nil
}

// RegisterAlertsDropped registers a callback for the dropped-alert counter.
//
// Description:
//
//	Sets up an observable counter that reports alerts lost to slow or
//	absent consumers. The callback is invoked each time metrics are
//	scraped, so the hub keeps a plain atomic counter and telemetry
//	samples it here.
//
// Inputs:
//
//	meter - The OTel meter to use for registration.
//	droppedFunc - A function that returns the cumulative dropped count.
//
// Outputs:
//
//	metric.Registration - Registration handle for cleanup.
//	error - Non-nil if registration fails.
func (m *Metrics) RegisterAlertsDropped(meter metric.Meter, droppedFunc func() int64) (metric.Registration, error) {
	var err error
	m.AlertsDropped, err = meter.Int64ObservableCounter(
		"driftwatch_alerts_dropped_total",
		metric.WithDescription("Alerts lost to slow or absent consumers"),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create alerts_dropped_total: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.AlertsDropped, droppedFunc())
		return nil
	}, m.AlertsDropped)
}
