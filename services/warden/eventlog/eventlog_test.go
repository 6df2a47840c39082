// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package eventlog

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/DriftWarden/pkg/logging"
	"github.com/AleutianAI/DriftWarden/services/warden/clock"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
)

type recordingObserver struct {
	mu      sync.Mutex
	levels  []string
	evicted int
}

func (o *recordingObserver) RecordLogEntry(level string, evicted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.levels = append(o.levels, level)
	if evicted {
		o.evicted++
	}
}

func TestAppend_AssignsIDAndTimestamp(t *testing.T) {
	start := time.Date(2024, 5, 21, 10, 0, 0, 0, time.UTC)
	log := New(Config{Clock: clock.NewFake(start)})

	e := log.Warn(datatypes.LogSourceBackend, "Injecting chaotic payload into ingestion pipeline...")
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, start, e.Timestamp)
	assert.Equal(t, datatypes.LogLevelWarn, e.Level)
	assert.Empty(t, e.Details)

	e2 := log.Error(datatypes.LogSourceDataflow, "Schema validation failed for x.", "Payload contained unexpected field: f")
	assert.NotEqual(t, e.ID, e2.ID)
	assert.Equal(t, "Payload contained unexpected field: f", e2.Details)
}

func TestList_InsertionOrder(t *testing.T) {
	log := New(Config{})
	log.Info(datatypes.LogSourceSystem, "one")
	log.Success(datatypes.LogSourceAI, "two")
	log.Error(datatypes.LogSourceSystem, "three")

	var msgs []string
	for _, e := range log.List() {
		msgs = append(msgs, e.Message)
	}
	assert.Equal(t, []string{"one", "two", "three"}, msgs)
}

func TestClear(t *testing.T) {
	log := New(Config{})
	log.Info(datatypes.LogSourceSystem, "one")
	log.Clear()
	assert.Empty(t, log.List())
	assert.Equal(t, 0, log.Len())
}

func TestBoundedRetention(t *testing.T) {
	obs := &recordingObserver{}
	log := New(Config{Capacity: 3, Observer: obs})
	for i := 0; i < 5; i++ {
		log.Info(datatypes.LogSourceSystem, fmt.Sprintf("m%d", i))
	}

	entries := log.List()
	require.Len(t, entries, 3)
	assert.Equal(t, "m2", entries[0].Message)
	assert.Equal(t, int64(2), log.Evicted())
	assert.Equal(t, 2, obs.evicted)
	assert.Len(t, obs.levels, 5)
}

func TestAppend_MirrorsToLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Output: &buf})
	log := New(Config{Logger: logger})

	log.Success(datatypes.LogSourceSystem, "Source src-3 schema updated and status reset to HEALTHY.")
	out := buf.String()
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, "event_level=SUCCESS")
	assert.Contains(t, out, "event_source=System")
}

func TestSubscribe_ReceivesNewEntries(t *testing.T) {
	log := New(Config{})
	log.Info(datatypes.LogSourceSystem, "before")

	ctx, cancel := context.WithCancel(context.Background())
	ch := log.Subscribe(ctx, 4)
	log.Info(datatypes.LogSourceSystem, "after")

	select {
	case e := <-ch:
		assert.Equal(t, "after", e.Message)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive entry")
	}

	cancel()
	for range ch {
	}
	assert.Eventually(t, func() bool { return log.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSubscribe_SlowSubscriberDoesNotBlock(t *testing.T) {
	log := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := log.Subscribe(ctx, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			log.Info(datatypes.LogSourceSystem, "burst")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Append blocked on a full subscriber")
	}
	assert.Len(t, ch, 1)
	assert.Equal(t, uint64(9), log.Missed())
	assert.Len(t, log.List(), 10)
}
