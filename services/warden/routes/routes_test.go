// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/DriftWarden/services/warden/app"
	"github.com/AleutianAI/DriftWarden/services/warden/clock"
	"github.com/AleutianAI/DriftWarden/services/warden/config"
)

func newTestRouter(t *testing.T, withMetrics bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var reg *prometheus.Registry
	opts := app.Options{Clock: clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))}
	if withMetrics {
		reg = prometheus.NewRegistry()
		opts.Registerer = reg
	}
	a, err := app.New(context.Background(), config.Config{
		Store:    config.StoreConfig{InMemory: true},
		EventLog: config.EventLogConfig{Capacity: 100},
		AI:       config.AIConfig{Backend: "gemini", Timeout: time.Second},
	}, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	router := gin.New()
	if withMetrics {
		router.Use(a.Metrics.GinMiddleware())
		SetupRoutes(router, a, reg)
	} else {
		SetupRoutes(router, a, nil)
	}
	return router
}

func TestSetupRoutes_Registered(t *testing.T) {
	router := newTestRouter(t, true)

	got := make(map[string]bool)
	for _, r := range router.Routes() {
		got[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /metrics",
		"GET /v1/sources",
		"GET /v1/sources/stats",
		"GET /v1/sources/:id",
		"POST /v1/sources/:id/resolver",
		"GET /v1/sources/:id/resolver",
		"DELETE /v1/sources/:id/resolver",
		"POST /v1/sources/:id/resolver/generate",
		"POST /v1/sources/:id/resolver/back",
		"POST /v1/sources/:id/resolver/review",
		"GET /v1/sources/:id/resolver/preview",
		"POST /v1/sources/:id/resolver/execute",
		"POST /v1/drift/simulate",
		"GET /v1/logs",
		"DELETE /v1/logs",
		"GET /v1/logs/ws",
		"POST /v1/demo/reset",
	} {
		assert.True(t, got[want], "missing route %s", want)
	}
}

func TestSetupRoutes_StaticBeforeParam(t *testing.T) {
	router := newTestRouter(t, false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/sources/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":35`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/sources/src-7", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"src-7"`)
}

func TestSetupRoutes_Metrics(t *testing.T) {
	router := newTestRouter(t, true)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `warden_http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, body, "warden_eventlog_entries_total")
}

func TestSetupRoutes_NoMetricsWithoutGatherer(t *testing.T) {
	router := newTestRouter(t, false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
