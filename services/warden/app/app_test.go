// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package app

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/DriftWarden/services/warden/analysis"
	"github.com/AleutianAI/DriftWarden/services/warden/clock"
	"github.com/AleutianAI/DriftWarden/services/warden/config"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
	"github.com/AleutianAI/DriftWarden/services/warden/store"
)

func testConfig() config.Config {
	return config.Config{
		Store:    config.StoreConfig{InMemory: true},
		EventLog: config.EventLogConfig{Capacity: 100},
		AI:       config.AIConfig{Backend: "gemini", Timeout: time.Second},
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(context.Background(), testConfig(), Options{
		Clock:      clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		Rand:       rand.New(rand.NewPCG(7, 7)),
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_WiresComponents(t *testing.T) {
	a := newTestApp(t)

	assert.Len(t, a.Registry.All(), store.SeedSize)
	assert.Equal(t, analysis.ModeMock, a.AI.Mode())
	require.NotNil(t, a.Metrics)

	entries := a.Events.List()
	require.Len(t, entries, 2)
	assert.Equal(t, "Data Warden initialized.", entries[0].Message)
	assert.Equal(t, "Loaded state for 35 data sources from persistent store.", entries[1].Message)
	assert.Equal(t, 2.0, testutil.ToFloat64(a.Metrics.LogEntriesTotal.WithLabelValues("INFO")))
}

func TestNew_LiveBackendFailureFallsBackToMock(t *testing.T) {
	cfg := testConfig()
	cfg.AI.Credential = "real-key"
	cfg.AI.Backend = "ollama" // ollama without a base URL cannot be built

	a, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	assert.Equal(t, analysis.ModeMock, a.AI.Mode())
}

func TestNew_LiveMode(t *testing.T) {
	cfg := testConfig()
	cfg.AI.Credential = "real-key"

	a, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	assert.Equal(t, analysis.ModeLive, a.AI.Mode())
}

func TestResetDemo(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	res, err := a.Simulator.Simulate(ctx)
	require.NoError(t, err)
	_, err = a.Resolver.Open(res.SourceID)
	require.NoError(t, err)
	require.Equal(t, 4, a.Registry.Stats().Drifting)

	sources, err := a.ResetDemo(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Seed(), sources)
	assert.Equal(t, store.Seed(), a.Registry.All())
	assert.Empty(t, a.Resolver.Sessions())

	entries := a.Events.List()
	last := entries[len(entries)-1]
	assert.Equal(t, datatypes.LogSourceSystem, last.Source)
	assert.Equal(t, datatypes.LogLevelWarn, last.Level)
	assert.Equal(t, "Demo environment reset to factory settings.", last.Message)
}

func TestResetDemo_HoldsSimulator(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	release, ok := a.Simulator.Hold()
	require.True(t, ok)
	_, err := a.ResetDemo(ctx)
	assert.ErrorIs(t, err, ErrBusy)
	release()

	_, err = a.ResetDemo(ctx)
	require.NoError(t, err)
	assert.False(t, a.Simulator.Busy(), "reset releases the simulator")
	_, err = a.Simulator.Simulate(ctx)
	require.NoError(t, err)
}

func TestOpenDB_OnDisk(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Store = config.StoreConfig{Path: filepath.Join(dir, "data")}

	a, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, err = os.Stat(filepath.Join(dir, "data"))
	assert.NoError(t, err)
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/warden")
	p, err := expandHome("~/.warden/data")
	require.NoError(t, err)
	assert.Equal(t, "/home/warden/.warden/data", p)

	p, err = expandHome("/var/lib/warden")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/warden", p)
}
