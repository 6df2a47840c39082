// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ringbuffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
	assert.Panics(t, func() { New[int](-1) })
}

func TestPush_KeepsInsertionOrder(t *testing.T) {
	buf := New[int](5)
	for i := 1; i <= 3; i++ {
		assert.False(t, buf.Push(i))
	}
	assert.Equal(t, []int{1, 2, 3}, buf.Snapshot())
	assert.Equal(t, 3, buf.Len())
	assert.Equal(t, 5, buf.Cap())
}

func TestPush_EvictsOldest(t *testing.T) {
	buf := New[int](3)
	buf.Push(1)
	buf.Push(2)
	buf.Push(3)

	assert.True(t, buf.Push(4))
	assert.True(t, buf.Push(5))

	assert.Equal(t, []int{3, 4, 5}, buf.Snapshot())
	assert.Equal(t, int64(2), buf.Dropped())
}

func TestSnapshot_DoesNotConsume(t *testing.T) {
	buf := New[string](2)
	buf.Push("a")
	_ = buf.Snapshot()
	assert.Equal(t, 1, buf.Len())

	snap := buf.Snapshot()
	snap[0] = "mutated"
	assert.Equal(t, []string{"a"}, buf.Snapshot())
}

func TestDrain(t *testing.T) {
	buf := New[int](3)
	for i := 0; i < 5; i++ {
		buf.Push(i)
	}
	assert.Equal(t, []int{2, 3, 4}, buf.Drain())
	assert.Equal(t, 0, buf.Len())
	assert.Empty(t, buf.Snapshot())

	buf.Push(9)
	assert.Equal(t, []int{9}, buf.Snapshot())
}

func TestClear_KeepsDroppedCount(t *testing.T) {
	buf := New[int](1)
	buf.Push(1)
	buf.Push(2)
	buf.Clear()

	assert.Equal(t, 0, buf.Len())
	assert.Equal(t, int64(1), buf.Dropped())
}

func TestPush_Concurrent(t *testing.T) {
	buf := New[int](100)
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				buf.Push(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, buf.Len())
	assert.Equal(t, int64(400), buf.Dropped())
}
