// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ringbuffer provides a bounded, thread-safe FIFO buffer that
// drops its oldest element when full.
package ringbuffer

import (
	"sync"
	"sync/atomic"
)

// RingBuffer is a thread-safe, fixed-size circular buffer.
//
// # Description
//
// Items are appended at the tail. When the buffer is full, Push overwrites
// the oldest item and increments the dropped counter. Readers take an
// ordered snapshot with Snapshot; nothing is consumed by reading.
//
// # Thread Safety
//
// All operations are protected by a mutex. Dropped is lock-free.
//
// # Example
//
//	buf := ringbuffer.New[Entry](1000)
//	if buf.Push(entry) {
//	    // the oldest entry was evicted
//	}
//	for _, e := range buf.Snapshot() {
//	    render(e)
//	}
type RingBuffer[T any] struct {
	buffer   []T
	head     int
	size     int
	capacity int
	dropped  atomic.Int64
	mu       sync.Mutex
}

// New creates an empty ring buffer holding at most capacity items.
//
// Panics if capacity <= 0.
func New[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		panic("ring buffer capacity must be positive")
	}
	return &RingBuffer[T]{
		buffer:   make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends item. Returns true if the oldest item was evicted.
func (r *RingBuffer[T]) Push(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := false
	if r.size == r.capacity {
		r.head = (r.head + 1) % r.capacity
		r.size--
		r.dropped.Add(1)
		dropped = true
	}

	tail := (r.head + r.size) % r.capacity
	r.buffer[tail] = item
	r.size++
	return dropped
}

// Snapshot returns the buffered items, oldest first, without removing them.
func (r *RingBuffer[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buffer[(r.head+i)%r.capacity]
	}
	return out
}

// Drain removes and returns every buffered item, oldest first.
func (r *RingBuffer[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, r.size)
	var zero T
	for i := 0; i < r.size; i++ {
		idx := (r.head + i) % r.capacity
		out[i] = r.buffer[idx]
		r.buffer[idx] = zero
	}
	r.head = 0
	r.size = 0
	return out
}

// Clear removes all items. The dropped counter is kept; it reports
// evictions over the buffer's lifetime.
func (r *RingBuffer[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.buffer {
		r.buffer[i] = zero
	}
	r.head = 0
	r.size = 0
}

// Len returns the current number of items.
func (r *RingBuffer[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the fixed capacity.
func (r *RingBuffer[T]) Cap() int {
	return r.capacity
}

// Dropped returns how many items have been evicted since creation.
func (r *RingBuffer[T]) Dropped() int64 {
	return r.dropped.Load()
}
