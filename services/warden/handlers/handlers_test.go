// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/DriftWarden/pkg/logging"
	"github.com/AleutianAI/DriftWarden/services/warden/analysis"
	"github.com/AleutianAI/DriftWarden/services/warden/app"
	"github.com/AleutianAI/DriftWarden/services/warden/clock"
	"github.com/AleutianAI/DriftWarden/services/warden/config"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
	"github.com/AleutianAI/DriftWarden/services/warden/registry"
	"github.com/AleutianAI/DriftWarden/services/warden/resolver"
	"github.com/AleutianAI/DriftWarden/services/warden/simulator"
	"github.com/AleutianAI/DriftWarden/services/warden/store"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestApp(t *testing.T, hook resolver.PhaseHook) *app.App {
	t.Helper()
	cfg := config.Config{
		Store:    config.StoreConfig{InMemory: true},
		EventLog: config.EventLogConfig{Capacity: 500},
		AI:       config.AIConfig{Backend: "gemini", Timeout: time.Second},
	}
	a, err := app.New(context.Background(), cfg, app.Options{
		Clock:     clock.NewFake(time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)),
		Rand:      rand.New(rand.NewPCG(3, 4)),
		PhaseHook: hook,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func newRouter(a *app.App) *gin.Engine {
	r := gin.New()
	r.GET("/health", HealthCheck(a))
	r.GET("/v1/sources", ListSources(a.Registry))
	r.GET("/v1/sources/stats", GetStats(a.Registry))
	r.GET("/v1/sources/:id", GetSource(a.Registry))
	r.POST("/v1/sources/:id/resolver", OpenResolver(a.Resolver))
	r.GET("/v1/sources/:id/resolver", GetResolver(a.Resolver))
	r.DELETE("/v1/sources/:id/resolver", CancelResolver(a.Resolver))
	r.POST("/v1/sources/:id/resolver/generate", GenerateProposal(a.Resolver))
	r.POST("/v1/sources/:id/resolver/back", ResolverBack(a.Resolver))
	r.POST("/v1/sources/:id/resolver/review", ResolverReview(a.Resolver))
	r.GET("/v1/sources/:id/resolver/preview", PreviewProposal(a.Resolver))
	r.POST("/v1/sources/:id/resolver/execute", ExecutePatch(a.Resolver))
	r.POST("/v1/drift/simulate", SimulateDrift(a.Simulator))
	r.GET("/v1/logs", ListLogs(a.Events))
	r.DELETE("/v1/logs", ClearLogs(a.Events))
	r.GET("/v1/logs/ws", StreamLogs(a.Events, a.Logger))
	r.POST("/v1/demo/reset", ResetDemo(a))
	return r
}

func do(t *testing.T, r http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// ============================================================================
// Error mapping
// ============================================================================

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", registry.ErrNotFound), http.StatusNotFound},
		{resolver.ErrNoSession, http.StatusNotFound},
		{resolver.ErrInvalidState, http.StatusConflict},
		{resolver.ErrBusy, http.StatusConflict},
		{resolver.ErrNotInterruptible, http.StatusConflict},
		{simulator.ErrBusy, http.StatusConflict},
		{app.ErrBusy, http.StatusConflict},
		{fmt.Errorf("x: %w", analysis.ErrUnavailable), http.StatusBadGateway},
		{resolver.ErrPhaseFailed, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

// ============================================================================
// Sources
// ============================================================================

func TestHealthCheck(t *testing.T) {
	r := newRouter(newTestApp(t, nil))
	w := do(t, r, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "mock", body["ai_mode"])
	assert.Equal(t, float64(35), body["sources"])
}

func TestListSources(t *testing.T) {
	r := newRouter(newTestApp(t, nil))

	w := do(t, r, http.MethodGet, "/v1/sources")
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[struct {
		Sources []datatypes.DataSource `json:"sources"`
		Count   int                    `json:"count"`
	}](t, w)
	assert.Equal(t, 35, all.Count)
	assert.Len(t, all.Sources, 35)

	w = do(t, r, http.MethodGet, "/v1/sources?status=DRIFT&type=CloudSQL")
	require.Equal(t, http.StatusOK, w.Code)
	drift := decode[struct {
		Sources []datatypes.DataSource `json:"sources"`
	}](t, w)
	require.Len(t, drift.Sources, 2)
	assert.Equal(t, "src-3", drift.Sources[0].ID)
	assert.Equal(t, "src-15", drift.Sources[1].ID)

	w = do(t, r, http.MethodGet, "/v1/sources?status=BROKEN")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"error"`)
}

func TestGetSourceAndStats(t *testing.T) {
	r := newRouter(newTestApp(t, nil))

	w := do(t, r, http.MethodGet, "/v1/sources/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, datatypes.SourceStats{Total: 35, Drifting: 3, Healthy: 32}, decode[datatypes.SourceStats](t, w))

	w = do(t, r, http.MethodGet, "/v1/sources/src-15")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Source  datatypes.DataSource `json:"source"`
		Version string               `json:"version"`
	}](t, w)
	assert.Equal(t, datatypes.StatusDriftDetected, body.Source.Status)
	assert.Equal(t, "v1.0", body.Version)

	w = do(t, r, http.MethodGet, "/v1/sources/src-404")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ============================================================================
// Drift workflows
// ============================================================================

func TestSimulateDrift(t *testing.T) {
	a := newTestApp(t, nil)
	r := newRouter(a)

	w := do(t, r, http.MethodPost, "/v1/drift/simulate")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[simulator.Result](t, w)
	assert.Equal(t, simulator.OutcomeDrifted, res.Outcome)
	assert.True(t, strings.HasPrefix(res.Field, "feature_flag_"))
	assert.Equal(t, 4, a.Registry.Stats().Drifting)
}

func TestResolverFlow(t *testing.T) {
	a := newTestApp(t, nil)
	r := newRouter(a)

	w := do(t, r, http.MethodPost, "/v1/sources/src-3/resolver/execute")
	assert.Equal(t, http.StatusNotFound, w.Code, "no session yet")

	w = do(t, r, http.MethodPost, "/v1/sources/src-1/resolver")
	assert.Equal(t, http.StatusConflict, w.Code, "healthy source")

	w = do(t, r, http.MethodPost, "/v1/sources/src-3/resolver")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, resolver.StateDiagnostic, decode[resolver.Session](t, w).State)

	w = do(t, r, http.MethodGet, "/v1/sources/src-3/resolver/preview")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPost, "/v1/sources/src-3/resolver/generate")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, resolver.StateProposal, decode[resolver.Session](t, w).State)

	w = do(t, r, http.MethodPost, "/v1/sources/src-3/resolver/back")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, r, http.MethodPost, "/v1/sources/src-3/resolver/review")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/v1/sources/src-3/resolver/preview")
	require.Equal(t, http.StatusOK, w.Code)
	p := decode[resolver.Preview](t, w)
	assert.Contains(t, p.SchemaDiff, "+marketing_consent BOOLEAN NULLABLE")
	assert.Equal(t, "v2.0", p.NextVersion)

	w = do(t, r, http.MethodPost, "/v1/sources/src-3/resolver/execute?wait=true")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, resolver.StateDone, decode[resolver.Session](t, w).State)

	src, _ := a.Registry.Get("src-3")
	assert.Equal(t, datatypes.StatusHealthy, src.Status)
	assert.Len(t, src.History, 1)

	w = do(t, r, http.MethodGet, "/v1/sources/src-3/resolver")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExecutePatch_Async(t *testing.T) {
	a := newTestApp(t, nil)
	r := newRouter(a)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/v1/sources/src-15/resolver").Code)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/v1/sources/src-15/resolver/generate").Code)

	w := do(t, r, http.MethodPost, "/v1/sources/src-15/resolver/execute")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, resolver.StateExecuting, decode[resolver.Session](t, w).State)

	a.Resolver.Wait()
	src, _ := a.Registry.Get("src-15")
	assert.Equal(t, datatypes.StatusHealthy, src.Status)
}

func TestExecutePatch_PhaseFailure(t *testing.T) {
	hook := func(_ context.Context, _, phase string) error {
		if phase == resolver.PhaseCompile {
			return errors.New("compilation error in definitions/src-28.sqlx")
		}
		return nil
	}
	a := newTestApp(t, hook)
	r := newRouter(a)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/v1/sources/src-28/resolver").Code)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/v1/sources/src-28/resolver/generate").Code)

	w := do(t, r, http.MethodPost, "/v1/sources/src-28/resolver/execute?wait=true")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decode[struct {
		Error   string           `json:"error"`
		Session resolver.Session `json:"session"`
	}](t, w)
	assert.Contains(t, body.Error, "compilation error")
	assert.Equal(t, resolver.StateProposal, body.Session.State)

	src, _ := a.Registry.Get("src-28")
	assert.Equal(t, datatypes.StatusDriftDetected, src.Status)
}

func TestCancelResolver(t *testing.T) {
	r := newRouter(newTestApp(t, nil))
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/v1/sources/src-3/resolver").Code)

	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/v1/sources/src-3/resolver").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodDelete, "/v1/sources/src-3/resolver").Code)
}

func TestResetDemo(t *testing.T) {
	a := newTestApp(t, nil)
	r := newRouter(a)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/v1/drift/simulate").Code)

	w := do(t, r, http.MethodPost, "/v1/demo/reset")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Stats datatypes.SourceStats `json:"stats"`
	}](t, w)
	assert.Equal(t, 3, body.Stats.Drifting)
	assert.Equal(t, store.Seed(), a.Registry.All())
}

// ============================================================================
// Logs
// ============================================================================

func TestListAndClearLogs(t *testing.T) {
	a := newTestApp(t, nil)
	r := newRouter(a)
	a.Events.Error(datatypes.LogSourceDataflow, "boom")

	w := do(t, r, http.MethodGet, "/v1/logs?level=ERROR")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Entries []datatypes.LogEntry `json:"entries"`
		Count   int                  `json:"count"`
	}](t, w)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "boom", body.Entries[0].Message)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/v1/logs?level=TRACE").Code)

	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/v1/logs").Code)
	assert.Equal(t, 0, a.Events.Len())
}

func TestStreamLogs(t *testing.T) {
	a := newTestApp(t, nil)
	srv := httptest.NewServer(newRouter(a))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/logs/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	// Backlog: the two startup entries.
	for _, want := range []string{"Data Warden initialized.", "Loaded state for 35 data sources from persistent store."} {
		var e datatypes.LogEntry
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, ws.ReadJSON(&e))
		assert.Equal(t, want, e.Message)
	}

	require.Eventually(t, func() bool { return a.Events.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	a.Events.Warn(datatypes.LogSourceBackend, "live entry")

	var e datatypes.LogEntry
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(&e))
	assert.Equal(t, "live entry", e.Message)
	assert.Equal(t, datatypes.LogLevelWarn, e.Level)
}

func TestStreamLogs_UpgradeFailureIsLogged(t *testing.T) {
	a := newTestApp(t, nil)
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: logging.LevelDebug, Output: &buf})

	r := gin.New()
	r.GET("/v1/logs/ws", StreamLogs(a.Events, logger))
	w := do(t, r, http.MethodGet, "/v1/logs/ws")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, buf.String(), "failed to upgrade log stream")
	assert.Contains(t, buf.String(), "component=log_stream")
	assert.Equal(t, 0, a.Events.Subscribers())
}
