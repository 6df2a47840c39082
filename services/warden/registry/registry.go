// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry owns the authoritative in-memory collection of sources.
//
// Every mutation is applied under a write lock and persisted to the store
// before the lock is released, so the store always reflects the latest
// committed state. Persistence ignores caller cancellation: once a change
// is committed in memory it is always written through. Reads return deep
// copies.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AleutianAI/DriftWarden/pkg/logging"
	"github.com/AleutianAI/DriftWarden/services/warden/clock"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
	"github.com/AleutianAI/DriftWarden/services/warden/store"
)

// ErrNotFound is returned when no source has the requested id.
var ErrNotFound = errors.New("source not found")

// SourceUpdate lists the fields UpdateFields may change. Nil fields are
// left untouched.
type SourceUpdate struct {
	Status       *datatypes.SourceStatus
	Schema       []datatypes.SchemaField
	History      []datatypes.SchemaPatch
	DriftDetails *datatypes.DriftDetails

	// ClearDriftDetails removes the drift details. Takes precedence over
	// DriftDetails.
	ClearDriftDetails bool

	// LastUpdated overrides the timestamp. Defaults to the clock's now.
	LastUpdated *time.Time
}

// Registry is the source collection.
//
// # Thread Safety
//
// One writer at a time; readers see the latest committed state.
type Registry struct {
	mu      sync.RWMutex
	sources []datatypes.DataSource
	index   map[string]int

	store  store.Store
	clock  clock.Clock
	logger *logging.Logger
}

// New loads the collection from st and returns a ready Registry.
func New(ctx context.Context, st store.Store, clk clock.Clock, logger *logging.Logger) *Registry {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	r := &Registry{
		store:  st,
		clock:  clk,
		logger: logger.With("component", "registry"),
	}
	r.install(st.Load(ctx))
	r.logger.Info("registry loaded", "sources", len(r.sources))
	return r
}

// install replaces the in-memory collection. Caller holds mu or is New.
func (r *Registry) install(sources []datatypes.DataSource) {
	r.sources = sources
	r.index = make(map[string]int, len(sources))
	for i, s := range sources {
		r.index[s.ID] = i
	}
}

// =============================================================================
// Reads
// =============================================================================

// List returns copies of the sources matching q, in registry order.
func (r *Registry) List(q datatypes.SourceQuery) []datatypes.DataSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]datatypes.DataSource, 0, len(r.sources))
	for _, s := range r.sources {
		if q.Matches(s) {
			out = append(out, s.Clone())
		}
	}
	return out
}

// All returns a copy of the whole collection.
func (r *Registry) All() []datatypes.DataSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return datatypes.CloneSources(r.sources)
}

// Get returns a copy of the source with id.
func (r *Registry) Get(id string) (datatypes.DataSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return datatypes.DataSource{}, false
	}
	return r.sources[i].Clone(), true
}

// Stats computes the dashboard KPIs.
func (r *Registry) Stats() datatypes.SourceStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return datatypes.ComputeStats(r.sources)
}

// =============================================================================
// Writes
// =============================================================================

// UpdateFields merges u into the source with id and persists.
//
// # Outputs
//
//   - datatypes.DataSource: Copy of the updated source.
//   - bool: false when id is unknown; nothing changes in that case.
func (r *Registry) UpdateFields(ctx context.Context, id string, u SourceUpdate) (datatypes.DataSource, bool) {
	updated, err := r.Mutate(ctx, id, func(s *datatypes.DataSource) error {
		if u.Status != nil {
			s.Status = *u.Status
		}
		if u.Schema != nil {
			s.Schema = u.Schema
		}
		if u.History != nil {
			s.History = u.History
		}
		if u.ClearDriftDetails {
			s.DriftDetails = nil
		} else if u.DriftDetails != nil {
			d := *u.DriftDetails
			s.DriftDetails = &d
		}
		if u.LastUpdated != nil {
			s.LastUpdated = *u.LastUpdated
		}
		return nil
	})
	if err != nil {
		return datatypes.DataSource{}, false
	}
	return updated, true
}

// Mutate runs fn on a copy of the source and commits it when fn returns nil.
//
// # Description
//
// LastUpdated is set to the clock's now before fn runs, so fn may still
// override it. fn must not retain the pointer. The committed collection is
// persisted before the write lock is released.
//
// # Outputs
//
//   - datatypes.DataSource: Copy of the committed source.
//   - error: ErrNotFound, or the error returned by fn (nothing committed).
func (r *Registry) Mutate(ctx context.Context, id string, fn func(s *datatypes.DataSource) error) (datatypes.DataSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[id]
	if !ok {
		return datatypes.DataSource{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	working := r.sources[i].Clone()
	working.LastUpdated = r.clock.Now()
	if err := fn(&working); err != nil {
		return datatypes.DataSource{}, err
	}
	working.ID = id

	r.sources[i] = working
	r.store.Save(context.WithoutCancel(ctx), r.sources)
	r.logger.Debug("source updated", "source_id", id, "status", working.Status)
	return working.Clone(), nil
}

// Replace swaps the whole collection and persists it.
func (r *Registry) Replace(ctx context.Context, sources []datatypes.DataSource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.install(datatypes.CloneSources(sources))
	r.store.Save(context.WithoutCancel(ctx), r.sources)
}

// Reset restores the demo seed through the store.
func (r *Registry) Reset(ctx context.Context) []datatypes.DataSource {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.install(r.store.Reset(context.WithoutCancel(ctx)))
	r.logger.Info("registry reset", "sources", len(r.sources))
	return datatypes.CloneSources(r.sources)
}
