// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package app assembles the warden components from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/DriftWarden/pkg/logging"
	"github.com/AleutianAI/DriftWarden/services/llm"
	"github.com/AleutianAI/DriftWarden/services/warden/analysis"
	"github.com/AleutianAI/DriftWarden/services/warden/clock"
	"github.com/AleutianAI/DriftWarden/services/warden/config"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
	"github.com/AleutianAI/DriftWarden/services/warden/eventlog"
	"github.com/AleutianAI/DriftWarden/services/warden/observability"
	"github.com/AleutianAI/DriftWarden/services/warden/registry"
	"github.com/AleutianAI/DriftWarden/services/warden/resolver"
	"github.com/AleutianAI/DriftWarden/services/warden/simulator"
	"github.com/AleutianAI/DriftWarden/services/warden/store"
)

// ErrBusy is returned by ResetDemo while a workflow is running.
var ErrBusy = errors.New("a workflow is running; try again when it finishes")

// Options carries dependencies that are not configuration.
type Options struct {
	Logger *logging.Logger

	// Clock drives every artificial delay. Default: clock.Real.
	Clock clock.Clock

	// Rand seeds the simulator. Default: time-seeded.
	Rand *rand.Rand

	// Registerer receives the Prometheus collectors. Nil disables metrics;
	// every recorder on a nil *observability.Metrics is a no-op.
	Registerer prometheus.Registerer

	// PhaseHook is passed to the resolver.
	PhaseHook resolver.PhaseHook
}

// App owns the running components.
type App struct {
	Config    config.Config
	Logger    *logging.Logger
	Metrics   *observability.Metrics
	DB        *store.DB
	Store     store.Store
	Events    *eventlog.Log
	Registry  *registry.Registry
	AI        analysis.Client
	Simulator *simulator.Simulator
	Resolver  *resolver.Manager
}

// New opens the store, loads the registry and builds every workflow.
//
// # Description
//
// A live AI backend that cannot be built is logged and replaced by the
// mock client; the service always starts in a usable mode.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	var metrics *observability.Metrics
	if opts.Registerer != nil {
		metrics = observability.NewMetrics(opts.Registerer)
	}

	db, err := openDB(cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	events := eventlog.New(eventlog.Config{
		Capacity: cfg.EventLog.Capacity,
		Clock:    clk,
		Logger:   logger.With("component", "eventlog"),
		Observer: metrics,
	})

	st := store.NewBadgerStore(db, logger.With("component", "store"), metrics)
	reg := registry.New(ctx, st, clk, logger.With("component", "registry"))

	ai := buildAI(cfg.AI, clk, logger, metrics)

	sim := simulator.New(reg, events, ai, simulator.Config{
		ValidationDelay: cfg.Simulator.ValidationDelay,
		TriggerDelay:    cfg.Simulator.TriggerDelay,
		AITimeout:       cfg.AI.Timeout,
		Rand:            opts.Rand,
		Clock:           clk,
		Logger:          logger,
		Observer:        metrics,
	})

	res := resolver.NewManager(reg, events, ai, resolver.Config{
		Delays: resolver.PhaseDelays{
			Git:     cfg.Resolver.GitDelay,
			Compile: cfg.Resolver.CompileDelay,
			Deploy:  cfg.Resolver.DeployDelay,
			Done:    cfg.Resolver.DoneDelay,
		},
		AITimeout:   cfg.AI.Timeout,
		StepTimeout: cfg.Resolver.StepTimeout,
		Hook:        opts.PhaseHook,
		Clock:       clk,
		Logger:      logger,
		Observer:    metrics,
	})

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		DB:        db,
		Store:     st,
		Events:    events,
		Registry:  reg,
		AI:        ai,
		Simulator: sim,
		Resolver:  res,
	}

	events.Info(datatypes.LogSourceSystem, "Data Warden initialized.")
	events.Info(datatypes.LogSourceBackend,
		fmt.Sprintf("Loaded state for %d data sources from persistent store.", len(reg.All())))
	logger.Info("warden ready", "sources", len(reg.All()), "ai_mode", ai.Mode(), "in_memory", db.InMemory())
	return a, nil
}

// ResetDemo restores the seed dataset and closes every resolver session.
// Simulations and new resolver sessions are held off until the seed is
// installed.
func (a *App) ResetDemo(ctx context.Context) ([]datatypes.DataSource, error) {
	release, ok := a.Simulator.Hold()
	if !ok {
		return nil, fmt.Errorf("%w: simulation in progress", ErrBusy)
	}
	defer release()

	var sources []datatypes.DataSource
	err := a.Resolver.ResetWith(func() {
		sources = a.Registry.Reset(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	a.Events.Warn(datatypes.LogSourceSystem, "Demo environment reset to factory settings.")
	a.Logger.Info("demo reset", "sources", len(sources))
	return sources, nil
}

// Close waits for background executions and closes the database.
func (a *App) Close() error {
	a.Resolver.Wait()
	return a.DB.Close()
}

func openDB(cfg config.StoreConfig, logger *logging.Logger) (*store.DB, error) {
	if cfg.InMemory {
		return store.OpenInMemory()
	}
	path, err := expandHome(cfg.Path)
	if err != nil {
		return nil, err
	}
	dbCfg := store.DefaultConfig(path)
	dbCfg.SyncWrites = cfg.SyncWrites
	dbCfg.Logger = logger.With("component", "badger").Slog()
	db, err := store.OpenDB(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", path, err)
	}
	return db, nil
}

func buildAI(cfg config.AIConfig, clk clock.Clock, logger *logging.Logger, metrics *observability.Metrics) analysis.Client {
	client, err := analysis.New(analysis.Options{
		Credential: cfg.Credential,
		LLM: llm.Config{
			Backend: cfg.Backend,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		},
		Live: analysis.LiveConfig{
			Timeout:       cfg.Timeout,
			RatePerSecond: cfg.RatePerSecond,
			Burst:         cfg.Burst,
			Temperature:   float32(cfg.Temperature),
		},
		Clock:    clk,
		Logger:   logger.With("component", "analysis"),
		Observer: metrics,
	})
	if err != nil {
		logger.Warn("live AI unavailable, using mock analysis", "backend", cfg.Backend, "error", err)
		return analysis.NewMockClient(clk, metrics)
	}
	return client
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
