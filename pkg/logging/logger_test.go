// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{" warn ", LevelWarn},
		{"warning", LevelWarn},
		{"Error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	if LevelWarn.toSlogLevel() != slog.LevelWarn {
		t.Error("LevelWarn should map to slog.LevelWarn")
	}
	if Level(-5).toSlogLevel() != slog.LevelInfo {
		t.Error("unknown level should default to slog.LevelInfo")
	}
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNew_WritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Service: "warden-test", Output: &buf})

	logger.Info("source updated", "source_id", "src-3")

	out := buf.String()
	if !strings.Contains(out, "source updated") {
		t.Errorf("output missing message: %q", out)
	}
	if !strings.Contains(out, "source_id=src-3") {
		t.Errorf("output missing attribute: %q", out)
	}
	if !strings.Contains(out, "service=warden-test") {
		t.Errorf("output missing service attribute: %q", out)
	}
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Output: &buf})

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, "visible") {
		t.Error("warn record should be written")
	}
}

func TestLogger_SetLevel_AppliesToChildren(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelError, Output: &buf})
	child := logger.With("component", "registry")

	child.Info("before")
	logger.SetLevel(LevelDebug)
	child.Debug("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Error("record logged before SetLevel should be filtered")
	}
	if !strings.Contains(out, "after") || !strings.Contains(out, "component=registry") {
		t.Errorf("child did not pick up new level: %q", out)
	}
	if logger.Level() != LevelDebug {
		t.Errorf("Level() = %v, want DEBUG", logger.Level())
	}
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{JSON: true, Output: &buf})
	logger.Error("save failed", "error", "disk full")

	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("expected JSON output, got %q", buf.String())
	}
}

func TestNew_LogDir(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Quiet: true, LogDir: dir, Service: "warden"})
	logger.Info("to file")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	name := "warden_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file missing record: %q", data)
	}
}

func TestNop_DoesNotPanic(t *testing.T) {
	logger := Nop()
	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")
	if logger.Slog() == nil {
		t.Error("Slog() should never be nil")
	}
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestLogger_Exporter(t *testing.T) {
	exporter := &bufferedExporter{}
	logger := New(Config{Quiet: true, Level: LevelInfo, Service: "warden", Exporter: exporter})

	logger.Debug("filtered")
	logger.Warn("exported", "source_id", "src-15")

	deadline := time.Now().Add(2 * time.Second)
	for len(exporter.Entries()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 exported entry, got %d", len(entries))
	}
	if entries[0].Message != "exported" || entries[0].Level != LevelWarn {
		t.Errorf("unexpected entry %+v", entries[0])
	}
	if entries[0].Attrs["source_id"] != "src-15" {
		t.Errorf("attrs = %v", entries[0].Attrs)
	}
}

func TestArgsToMap_OddArgs(t *testing.T) {
	m := argsToMap([]any{"a", 1, "dangling"})
	if len(m) != 1 || m["a"] != 1 {
		t.Errorf("argsToMap() = %v", m)
	}
}

// bufferedExporter keeps every exported entry in memory.
type bufferedExporter struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (e *bufferedExporter) Export(_ context.Context, entry LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, entry)
	return nil
}

func (e *bufferedExporter) Flush(context.Context) error { return nil }

func (e *bufferedExporter) Close() error { return nil }

func (e *bufferedExporter) Entries() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]LogEntry, len(e.entries))
	copy(out, e.entries)
	return out
}
