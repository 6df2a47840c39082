// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/DriftWarden/pkg/logging"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
)

type countingRecorder struct {
	mu  sync.Mutex
	ops []string
}

func (r *countingRecorder) RecordStoreError(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func newTestStore(t *testing.T) (*BadgerStore, *DB, *countingRecorder) {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rec := &countingRecorder{}
	return NewBadgerStore(db, logging.Nop(), rec), db, rec
}

func readSlot(t *testing.T, db *DB) []byte {
	t.Helper()
	var raw []byte
	err := db.WithReadTxn(context.Background(), func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(SlotKey))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	require.NoError(t, err)
	return raw
}

// =============================================================================
// Seed
// =============================================================================

func TestSeed_Shape(t *testing.T) {
	sources := Seed()
	require.Len(t, sources, SeedSize)

	assert.Equal(t, "src-1", sources[0].ID)
	assert.Equal(t, "service_log_1_pubsub", sources[0].Name)
	assert.Equal(t, datatypes.SourceTypeGCS, sources[1].Type)
	assert.Equal(t, "service_log_3_cloudsql", sources[2].Name)

	var drifting []string
	for _, s := range sources {
		require.NoError(t, s.CheckInvariants())
		assert.Len(t, s.Schema, 3)
		assert.Empty(t, s.History)
		if s.Status == datatypes.StatusDriftDetected {
			drifting = append(drifting, s.ID)
			assert.Len(t, s.DriftDetails.UnexpectedFields, 2)
			assert.NotNil(t, s.DriftDetails.MissingFields)
		}
	}
	assert.Equal(t, []string{"src-3", "src-15", "src-28"}, drifting)
}

func TestSeed_Deterministic(t *testing.T) {
	assert.Equal(t, Seed(), Seed())
}

// =============================================================================
// BadgerStore
// =============================================================================

func TestLoad_EmptySlotSeedsAndPersists(t *testing.T) {
	s, db, rec := newTestStore(t)
	ctx := context.Background()

	got := s.Load(ctx)
	assert.Equal(t, Seed(), got)
	assert.NotEmpty(t, readSlot(t, db), "seed should be persisted")
	assert.Empty(t, rec.ops)
}

func TestLoad_Idempotent(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	first := s.Load(ctx)
	second := s.Load(ctx)
	assert.Equal(t, first, second)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	sources := s.Load(ctx)
	sources[0].Status = datatypes.StatusDriftDetected
	sources[0].DriftDetails = &datatypes.DriftDetails{
		DetectedAt:       SeedEpoch,
		UnexpectedFields: []datatypes.SchemaField{{Name: "feature_flag_7", Type: "BOOLEAN", Mode: "NULLABLE"}},
		MissingFields:    []datatypes.SchemaField{},
		SamplePayload:    `{"feature_flag_7": true}`,
		DetectionReport:  "report",
	}
	s.Save(ctx, sources)

	assert.Equal(t, sources, s.Load(ctx))
}

func TestLoad_CorruptSlotFallsBackToSeed(t *testing.T) {
	s, db, rec := newTestStore(t)
	ctx := context.Background()

	err := db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(SlotKey), []byte("{not json"))
	})
	require.NoError(t, err)

	assert.Equal(t, Seed(), s.Load(ctx))
	assert.Equal(t, []string{"decode"}, rec.ops)

	// The seed replaced the corrupt blob.
	assert.Equal(t, Seed(), s.Load(ctx))
}

func TestReset_ReturnsSeed(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	sources := s.Load(ctx)
	sources = sources[:1]
	s.Save(ctx, sources)
	require.Len(t, s.Load(ctx), 1)

	assert.Equal(t, Seed(), s.Reset(ctx))
	assert.Equal(t, Seed(), s.Load(ctx))
}

func TestSave_CancelledContextIsRecorded(t *testing.T) {
	s, _, rec := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.Save(ctx, Seed())
	assert.Equal(t, []string{"save"}, rec.ops)
}

func TestOpenDB_RequiresPath(t *testing.T) {
	_, err := OpenDB(Config{})
	assert.Error(t, err)
}

func TestOpenDB_OnDisk(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.SyncWrites = false

	db, err := OpenDB(cfg)
	require.NoError(t, err)
	assert.Equal(t, dir, db.Path())
	assert.False(t, db.InMemory())

	s := NewBadgerStore(db, nil, nil)
	s.Save(context.Background(), Seed()[:2])
	require.NoError(t, db.Close())

	db, err = OpenDB(cfg)
	require.NoError(t, err)
	defer db.Close()
	assert.Len(t, NewBadgerStore(db, nil, nil).Load(context.Background()), 2)
}
