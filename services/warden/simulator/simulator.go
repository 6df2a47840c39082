// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package simulator injects synthetic schema drift into a healthy source.
//
// A simulation walks the pipeline a real drifting record would take:
//
//	ingestion ──► stream validation fails ──► dead letter queue
//	          ──► AI detection ──► source marked DRIFT_DETECTED ──► alert
//
// Each stage is reported to the event log under its pseudo-subsystem and
// paced with artificial delays.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/DriftWarden/pkg/logging"
	"github.com/AleutianAI/DriftWarden/services/warden/analysis"
	"github.com/AleutianAI/DriftWarden/services/warden/clock"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
	"github.com/AleutianAI/DriftWarden/services/warden/eventlog"
	"github.com/AleutianAI/DriftWarden/services/warden/registry"
)

// ErrBusy is returned when a simulation is already running.
var ErrBusy = errors.New("simulation already in progress")

// ErrNotHealthy is returned when the chosen source left HEALTHY before
// the drift could be recorded.
var ErrNotHealthy = errors.New("source is no longer healthy")

// Default pacing.
const (
	DefaultValidationDelay = 800 * time.Millisecond
	DefaultTriggerDelay    = 1000 * time.Millisecond
	DefaultAITimeout       = 60 * time.Second
)

// reportPreviewLen is the number of characters of the detection report
// echoed into the event log.
const reportPreviewLen = 100

// Outcome classifies a finished simulation.
type Outcome string

const (
	OutcomeDrifted Outcome = "drifted"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Result describes what a simulation did.
type Result struct {
	Outcome    Outcome               `json:"outcome"`
	SourceID   string                `json:"source_id,omitempty"`
	SourceName string                `json:"source_name,omitempty"`
	Field      string                `json:"field,omitempty"`
	Source     *datatypes.DataSource `json:"source,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// Observer records simulation outcomes. Implemented by the metrics layer.
type Observer interface {
	RecordSimulation(outcome string, duration time.Duration)
}

// Config configures a Simulator.
type Config struct {
	ValidationDelay time.Duration
	TriggerDelay    time.Duration
	AITimeout       time.Duration

	// Rand picks the victim source and field suffix. Nil uses a
	// time-seeded PCG source.
	Rand *rand.Rand

	Clock    clock.Clock
	Logger   *logging.Logger
	Observer Observer
}

// Simulator runs drift simulations one at a time.
//
// # Thread Safety
//
// Safe for concurrent use. Overlapping calls to Simulate fail fast with
// ErrBusy instead of queuing.
type Simulator struct {
	registry *registry.Registry
	events   *eventlog.Log
	ai       analysis.Client

	cfg    Config
	clock  clock.Clock
	logger *logging.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	busy atomic.Bool
}

// New creates a Simulator.
func New(reg *registry.Registry, events *eventlog.Log, ai analysis.Client, cfg Config) *Simulator {
	if cfg.ValidationDelay <= 0 {
		cfg.ValidationDelay = DefaultValidationDelay
	}
	if cfg.TriggerDelay <= 0 {
		cfg.TriggerDelay = DefaultTriggerDelay
	}
	if cfg.AITimeout <= 0 {
		cfg.AITimeout = DefaultAITimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	rng := cfg.Rand
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Simulator{
		registry: reg,
		events:   events,
		ai:       ai,
		cfg:      cfg,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With("component", "simulator"),
		rng:      rng,
	}
}

// Busy reports whether a simulation is in flight.
func (s *Simulator) Busy() bool {
	return s.busy.Load()
}

// Hold keeps new simulations out until release is called. ok is false,
// and nothing is held, when a simulation is already running.
func (s *Simulator) Hold() (release func(), ok bool) {
	if !s.busy.CompareAndSwap(false, true) {
		return func() {}, false
	}
	return func() { s.busy.Store(false) }, true
}

// Simulate drifts one randomly chosen healthy source.
//
// # Description
//
// Runs the full drift pipeline against a uniformly chosen HEALTHY source,
// adding a BOOLEAN field named feature_flag_<n>. Callers that must not
// abort half-way (HTTP handlers) should pass a context detached from the
// request.
//
// # Outputs
//
//   - Result: OutcomeDrifted with the updated source, OutcomeSkipped when
//     no source is healthy, or OutcomeFailed.
//   - error: ErrBusy when another simulation runs (no state change), or
//     the cause of an OutcomeFailed result. nil for drifted and skipped.
func (s *Simulator) Simulate(ctx context.Context) (Result, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer s.busy.Store(false)

	start := time.Now()
	res, err := s.run(ctx)
	if err != nil {
		s.events.Error(datatypes.LogSourceSystem, "Simulation failed", err.Error())
		s.logger.Warn("simulation failed", "source_id", res.SourceID, "error", err)
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
	}
	if s.cfg.Observer != nil {
		s.cfg.Observer.RecordSimulation(string(res.Outcome), time.Since(start))
	}
	return res, err
}

func (s *Simulator) run(ctx context.Context) (Result, error) {
	s.events.Warn(datatypes.LogSourceBackend, "Injecting chaotic payload into ingestion pipeline...")

	candidates := s.registry.List(datatypes.SourceQuery{Status: datatypes.StatusFilterHealthy})
	if len(candidates) == 0 {
		s.events.Info(datatypes.LogSourceSystem, "No healthy sources available to drift.")
		return Result{Outcome: OutcomeSkipped}, nil
	}

	target, field := s.pick(candidates)
	res := Result{SourceID: target.ID, SourceName: target.Name, Field: field}

	payload, err := BuildPayload(target.Schema, field, s.clock.Now())
	if err != nil {
		return res, fmt.Errorf("build payload: %w", err)
	}

	if err := s.clock.Sleep(ctx, s.cfg.ValidationDelay); err != nil {
		return res, err
	}
	s.events.Error(datatypes.LogSourceDataflow,
		fmt.Sprintf("Schema validation failed for %s.", target.Name),
		fmt.Sprintf("Payload contained unexpected field: %s", field))
	s.events.Info(datatypes.LogSourceDataflow,
		fmt.Sprintf("Routing failed message to Dead Letter Queue (topic: %s-dlq)", target.Name))

	if err := s.clock.Sleep(ctx, s.cfg.TriggerDelay); err != nil {
		return res, err
	}
	s.events.Info(datatypes.LogSourceSystem, "DLQ Trigger: Invoking AI to analyze schema drift...")

	detectCtx, cancel := context.WithTimeout(ctx, s.cfg.AITimeout)
	report, err := s.ai.Detect(detectCtx, target.Schema, payload)
	cancel()
	if err != nil {
		return res, fmt.Errorf("drift detection: %w", err)
	}
	s.events.Warn(datatypes.LogSourceAI,
		fmt.Sprintf("Drift Analysis Complete for %s", target.ID),
		preview(report, reportPreviewLen))

	updated, err := s.registry.Mutate(ctx, target.ID, func(src *datatypes.DataSource) error {
		if src.Status != datatypes.StatusHealthy {
			return ErrNotHealthy
		}
		src.Status = datatypes.StatusDriftDetected
		src.DriftDetails = &datatypes.DriftDetails{
			DetectedAt: s.clock.Now(),
			UnexpectedFields: []datatypes.SchemaField{
				{Name: field, Type: datatypes.FieldTypeBoolean, Mode: datatypes.ModeNullable},
			},
			MissingFields:   []datatypes.SchemaField{},
			SamplePayload:   payload,
			DetectionReport: report,
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("record drift on %s: %w", target.ID, err)
	}

	s.events.Error(datatypes.LogSourceSystem,
		fmt.Sprintf("Alert Raised: Drift confirmed on %s. Manual resolution required.", target.Name))
	s.logger.Info("drift simulated", "source_id", target.ID, "field", field)

	res.Outcome = OutcomeDrifted
	res.Source = &updated
	return res, nil
}

// pick chooses a source uniformly and a field name not already in its schema.
func (s *Simulator) pick(candidates []datatypes.DataSource) (datatypes.DataSource, string) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	target := candidates[s.rng.IntN(len(candidates))]
	field := fmt.Sprintf("feature_flag_%d", s.rng.IntN(1000))
	for i := 0; i < 1000 && target.HasField(field); i++ {
		field = fmt.Sprintf("feature_flag_%d", s.rng.IntN(1000))
	}
	return target, field
}

// BuildPayload renders a sample record for schema with an extra boolean
// field set to true. Values follow the column type; event_id gets an
// evt_<millis> identifier like the real producers emit.
func BuildPayload(schema []datatypes.SchemaField, extraField string, now time.Time) (string, error) {
	record := make(map[string]any, len(schema)+1)
	for _, f := range schema {
		record[f.Name] = sampleValue(f, now)
	}
	record[extraField] = true
	raw, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func sampleValue(f datatypes.SchemaField, now time.Time) any {
	switch f.Type {
	case datatypes.FieldTypeString:
		if f.Name == "event_id" {
			return fmt.Sprintf("evt_%d", now.UnixMilli())
		}
		return "sample"
	case datatypes.FieldTypeTimestamp:
		return now.UTC().Format(time.RFC3339)
	case datatypes.FieldTypeJSON:
		return map[string]any{"segment": "beta"}
	case datatypes.FieldTypeInteger:
		return 0
	case datatypes.FieldTypeFloat:
		return 0.0
	case datatypes.FieldTypeBoolean:
		return false
	default:
		return nil
	}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
