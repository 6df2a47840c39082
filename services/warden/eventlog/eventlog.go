// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package eventlog holds the operator-facing activity feed.
//
// Entries are kept in a bounded ring buffer, mirrored to the service
// logger and fanned out to live subscribers (the websocket log viewer).
// Append never fails and never blocks: a full buffer evicts its oldest
// entry and a slow subscriber misses entries.
package eventlog

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/DriftWarden/pkg/logging"
	"github.com/AleutianAI/DriftWarden/pkg/ringbuffer"
	"github.com/AleutianAI/DriftWarden/services/warden/clock"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
)

// DefaultCapacity is the retention used when Config.Capacity is zero.
const DefaultCapacity = 1000

// DefaultSubscriberBuffer is the channel size handed to subscribers.
const DefaultSubscriberBuffer = 64

// Observer is notified of every append. Implemented by the metrics layer.
type Observer interface {
	RecordLogEntry(level string, evicted bool)
}

// Config configures a Log.
type Config struct {
	Capacity int
	Clock    clock.Clock
	Logger   *logging.Logger
	Observer Observer
}

// Log is the append-only activity feed.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Appends are serialized so that
// List and every subscriber observe the same order.
type Log struct {
	buf      *ringbuffer.RingBuffer[datatypes.LogEntry]
	clock    clock.Clock
	logger   *logging.Logger
	observer Observer

	mu      sync.Mutex
	subs    map[uint64]chan datatypes.LogEntry
	nextSub uint64
	missed  uint64
}

// New creates an empty Log.
func New(cfg Config) *Log {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return &Log{
		buf:      ringbuffer.New[datatypes.LogEntry](cfg.Capacity),
		clock:    cfg.Clock,
		logger:   cfg.Logger.With("component", "eventlog"),
		observer: cfg.Observer,
		subs:     make(map[uint64]chan datatypes.LogEntry),
	}
}

// Append records a new entry and returns it.
func (l *Log) Append(source datatypes.LogSource, level datatypes.LogLevel, message string, details ...string) datatypes.LogEntry {
	entry := datatypes.LogEntry{
		ID:        uuid.NewString(),
		Timestamp: l.clock.Now(),
		Source:    source,
		Level:     level,
		Message:   message,
	}
	if len(details) > 0 {
		entry.Details = details[0]
	}

	l.mu.Lock()
	evicted := l.buf.Push(entry)
	for _, ch := range l.subs {
		select {
		case ch <- entry:
		default:
			l.missed++
		}
	}
	l.mu.Unlock()

	l.mirror(entry)
	if l.observer != nil {
		l.observer.RecordLogEntry(string(level), evicted)
	}
	return entry
}

// Info appends an INFO entry.
func (l *Log) Info(source datatypes.LogSource, message string, details ...string) datatypes.LogEntry {
	return l.Append(source, datatypes.LogLevelInfo, message, details...)
}

// Warn appends a WARN entry.
func (l *Log) Warn(source datatypes.LogSource, message string, details ...string) datatypes.LogEntry {
	return l.Append(source, datatypes.LogLevelWarn, message, details...)
}

// Error appends an ERROR entry.
func (l *Log) Error(source datatypes.LogSource, message string, details ...string) datatypes.LogEntry {
	return l.Append(source, datatypes.LogLevelError, message, details...)
}

// Success appends a SUCCESS entry.
func (l *Log) Success(source datatypes.LogSource, message string, details ...string) datatypes.LogEntry {
	return l.Append(source, datatypes.LogLevelSuccess, message, details...)
}

// List returns the retained entries in insertion order.
func (l *Log) List() []datatypes.LogEntry {
	return l.buf.Snapshot()
}

// Clear empties the log. Subscribers stay registered.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Clear()
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	return l.buf.Len()
}

// Evicted returns how many entries fell off the ring buffer.
func (l *Log) Evicted() int64 {
	return l.buf.Dropped()
}

// Missed returns how many deliveries were skipped because a subscriber
// channel was full.
func (l *Log) Missed() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.missed
}

// Subscribe streams entries appended after the call.
//
// # Description
//
// Returns a channel with the given buffer size (DefaultSubscriberBuffer
// when buffer <= 0). The channel is closed once ctx is done. Entries that
// do not fit in the buffer are dropped for this subscriber only.
func (l *Log) Subscribe(ctx context.Context, buffer int) <-chan datatypes.LogEntry {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan datatypes.LogEntry, buffer)

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs, id)
		close(ch)
		l.mu.Unlock()
	}()
	return ch
}

// Subscribers returns the number of live subscriptions.
func (l *Log) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

func (l *Log) mirror(e datatypes.LogEntry) {
	args := []any{"event_source", string(e.Source), "event_id", e.ID}
	if e.Details != "" {
		args = append(args, "details", e.Details)
	}
	switch e.Level {
	case datatypes.LogLevelError:
		l.logger.Error(e.Message, args...)
	case datatypes.LogLevelWarn:
		l.logger.Warn(e.Message, args...)
	default:
		l.logger.Info(e.Message, append(args, "event_level", string(e.Level))...)
	}
}
