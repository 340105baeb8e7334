// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/saltline/driftwatch/services/identity/telemetry"
)

func newMetricsRouter(t *testing.T) (*gin.Engine, *sdkmetric.ManualReader) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := telemetry.NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	router := gin.New()
	router.Use(MetricsMiddleware(m))
	router.GET("/ping/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router, reader
}

func collectMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		for _, inst := range sm.Metrics {
			if inst.Name == name {
				return inst
			}
		}
	}
	t.Fatalf("metric %s not collected", name)
	return metricdata.Metrics{}
}

func TestMetricsMiddleware_CountsByRouteTemplate(t *testing.T) {
	router, reader := newMetricsRouter(t)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping/42", nil)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	inst := collectMetric(t, reader, "driftwatch_http_requests_total")
	sum, ok := inst.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1, "parameterized requests must share one series")

	dp := sum.DataPoints[0]
	assert.Equal(t, int64(3), dp.Value)

	route, _ := dp.Attributes.Value(attribute.Key("route"))
	assert.Equal(t, "/ping/:id", route.AsString())
	status, _ := dp.Attributes.Value(attribute.Key("status"))
	assert.Equal(t, int64(http.StatusOK), status.AsInt64())
}

func TestMetricsMiddleware_UnmatchedRouteLabel(t *testing.T) {
	router, reader := newMetricsRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/no/such/route", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	inst := collectMetric(t, reader, "driftwatch_http_requests_total")
	sum, ok := inst.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)

	route, _ := sum.DataPoints[0].Attributes.Value(attribute.Key("route"))
	assert.Equal(t, "unmatched", route.AsString())
	status, _ := sum.DataPoints[0].Attributes.Value(attribute.Key("status"))
	assert.Equal(t, int64(http.StatusNotFound), status.AsInt64())
}

func TestMetricsMiddleware_ActiveRequestsSettle(t *testing.T) {
	router, reader := newMetricsRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/ping/1", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	inst := collectMetric(t, reader, "driftwatch_http_active_requests")
	sum, ok := inst.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(0), sum.DataPoints[0].Value)
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	router, reader := newMetricsRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/ping/1", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	inst := collectMetric(t, reader, "driftwatch_http_request_duration_seconds")
	hist, ok := inst.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
}
