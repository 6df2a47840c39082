// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists the source collection in a single BadgerDB slot.
//
// The whole collection is stored as one JSON document under SlotKey. The
// store never returns an error to its callers: a missing or unreadable slot
// is replaced by the demo seed, and write failures are logged and counted.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/DriftWarden/pkg/logging"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
)

// SlotKey is the BadgerDB key holding the serialized collection.
const SlotKey = "warden_sources_v1"

// Store is the durability boundary of the source registry.
type Store interface {
	// Load returns the stored collection, seeding it when absent or corrupt.
	Load(ctx context.Context) []datatypes.DataSource

	// Save overwrites the slot with sources. Failures are logged, not returned.
	Save(ctx context.Context, sources []datatypes.DataSource)

	// Reset discards the slot and returns a freshly persisted seed.
	Reset(ctx context.Context) []datatypes.DataSource
}

// ErrorRecorder counts store failures by operation.
type ErrorRecorder interface {
	RecordStoreError(op string)
}

// BadgerStore implements Store on top of DB.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB serializes the underlying writes.
// Callers that need read-modify-write consistency (the registry) hold
// their own lock around Save.
type BadgerStore struct {
	db       *DB
	logger   *logging.Logger
	recorder ErrorRecorder
	key      []byte
}

// NewBadgerStore creates a store over db. recorder may be nil.
func NewBadgerStore(db *DB, logger *logging.Logger, recorder ErrorRecorder) *BadgerStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &BadgerStore{
		db:       db,
		logger:   logger.With("component", "store"),
		recorder: recorder,
		key:      []byte(SlotKey),
	}
}

// Load implements Store.
func (s *BadgerStore) Load(ctx context.Context) []datatypes.DataSource {
	var raw []byte
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})

	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		s.logger.Info("no stored sources, seeding demo dataset", "key", SlotKey)
	case err != nil:
		s.logger.Error("failed to read sources, seeding demo dataset", "key", SlotKey, "error", err)
		s.recordError("load")
	default:
		var sources []datatypes.DataSource
		err := json.Unmarshal(raw, &sources)
		if err == nil && sources != nil {
			return sources
		}
		s.logger.Warn("stored sources are corrupt, seeding demo dataset", "key", SlotKey, "error", err)
		s.recordError("decode")
	}

	seed := Seed()
	s.Save(ctx, seed)
	return seed
}

// Save implements Store.
func (s *BadgerStore) Save(ctx context.Context, sources []datatypes.DataSource) {
	raw, err := json.Marshal(sources)
	if err != nil {
		s.logger.Error("failed to encode sources", "error", err)
		s.recordError("encode")
		return
	}
	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(s.key, raw)
	})
	if err != nil {
		s.logger.Error("failed to save sources", "key", SlotKey, "error", err)
		s.recordError("save")
		return
	}
	s.logger.Debug("sources saved", "count", len(sources), "bytes", len(raw))
}

// Reset implements Store.
func (s *BadgerStore) Reset(ctx context.Context) []datatypes.DataSource {
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Delete(s.key)
	})
	if err != nil {
		s.logger.Error("failed to clear stored sources", "key", SlotKey, "error", err)
		s.recordError("reset")
	}
	return s.Load(ctx)
}

func (s *BadgerStore) recordError(op string) {
	if s.recorder != nil {
		s.recorder.RecordStoreError(op)
	}
}

var _ Store = (*BadgerStore)(nil)
