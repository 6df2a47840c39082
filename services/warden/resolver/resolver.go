// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolver drives the human-in-the-loop resolution of a drifting
// source.
//
// Each drifting source can have one session moving through
//
//	DIAGNOSTIC ──generate──► PROPOSAL ──execute──► EXECUTING ──► DONE
//	     ▲                      │
//	     └────────back──────────┘
//
// Generation asks the AI client for an analysis and a SQLX patch and saves
// both onto the source. Execution runs the simulated git, compile and
// deploy phases and then commits the new schema to the registry.
package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/DriftWarden/pkg/logging"
	"github.com/AleutianAI/DriftWarden/services/warden/analysis"
	"github.com/AleutianAI/DriftWarden/services/warden/clock"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
	"github.com/AleutianAI/DriftWarden/services/warden/eventlog"
	"github.com/AleutianAI/DriftWarden/services/warden/markdown"
	"github.com/AleutianAI/DriftWarden/services/warden/registry"
)

var tracer = otel.Tracer("warden.resolver")

// PatchDescription is recorded on every patch this package applies.
const PatchDescription = "Auto-resolution via Dataform (AI)"

// PhaseHook runs at the end of each execution phase. A non-nil error fails
// the phase. The default is no hook: phases always succeed.
type PhaseHook func(ctx context.Context, sourceID, phase string) error

// PhaseDelays are the artificial durations of the execution phases.
type PhaseDelays struct {
	Git     time.Duration
	Compile time.Duration
	Deploy  time.Duration
	Done    time.Duration
}

// DefaultPhaseDelays mirror the pacing of the dashboard animation.
var DefaultPhaseDelays = PhaseDelays{
	Git:     800 * time.Millisecond,
	Compile: 1000 * time.Millisecond,
	Deploy:  1200 * time.Millisecond,
	Done:    500 * time.Millisecond,
}

// Observer receives resolver telemetry.
type Observer interface {
	RecordResolution(outcome string)
	RecordPhase(phase string, elapsed time.Duration)
	SetActiveSessions(n int)
}

// Config configures a Manager.
type Config struct {
	Delays PhaseDelays

	// AITimeout bounds one proposal generation. Default: 60 seconds.
	AITimeout time.Duration

	// StepTimeout bounds one execution phase. Default: 30 seconds.
	StepTimeout time.Duration

	Hook PhaseHook

	// NewPatchID mints patch identifiers. Default: "patch-" + UUIDv7.
	NewPatchID func() string

	Clock    clock.Clock
	Logger   *logging.Logger
	Observer Observer
}

// Manager owns every open resolver session.
//
// # Thread Safety
//
// Safe for concurrent use. Sessions of different sources progress
// independently. Within one session at most one generation runs at a time
// and execution cannot overlap generation.
type Manager struct {
	registry *registry.Registry
	events   *eventlog.Log
	ai       analysis.Client

	cfg    Config
	clock  clock.Clock
	logger *logging.Logger

	mu       sync.Mutex
	sessions map[string]*session
	running  sync.WaitGroup
}

// NewManager creates a Manager.
func NewManager(reg *registry.Registry, events *eventlog.Log, ai analysis.Client, cfg Config) *Manager {
	if cfg.Delays == (PhaseDelays{}) {
		cfg.Delays = DefaultPhaseDelays
	}
	if cfg.AITimeout <= 0 {
		cfg.AITimeout = 60 * time.Second
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 30 * time.Second
	}
	if cfg.NewPatchID == nil {
		cfg.NewPatchID = func() string { return "patch-" + uuid.Must(uuid.NewV7()).String() }
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return &Manager{
		registry: reg,
		events:   events,
		ai:       ai,
		cfg:      cfg,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With("component", "resolver"),
		sessions: make(map[string]*session),
	}
}

// =============================================================================
// Session lifecycle
// =============================================================================

// Open starts a resolver for a drifting source.
//
// # Description
//
// The source must be DRIFT_DETECTED. A source that already carries a saved
// proposal opens straight in PROPOSAL. Opening a source that already has a
// session returns that session unchanged.
//
// # Outputs
//
//   - Session: the session snapshot.
//   - error: registry.ErrNotFound for unknown ids, ErrInvalidState when the
//     source is not drifting.
func (m *Manager) Open(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s.view(), nil
	}
	src, ok := m.registry.Get(id)
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", registry.ErrNotFound, id)
	}
	if src.Status != datatypes.StatusDriftDetected || src.DriftDetails == nil {
		return Session{}, fmt.Errorf("%w: source %s is %s", ErrInvalidState, id, src.Status)
	}

	s := &session{sourceID: id, state: StateDiagnostic, openedAt: m.clock.Now()}
	if src.DriftDetails.HasProposal() {
		s.state = StateProposal
	}
	m.sessions[id] = s
	m.events.Info(datatypes.LogSourceFrontend, fmt.Sprintf("User clicked Resolve for source %s", src.Name))
	m.logger.Debug("resolver opened", "source_id", id, "state", s.state)
	m.reportActiveLocked()
	return s.view(), nil
}

// Get returns the session for id.
func (m *Manager) Get(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	return s.view(), nil
}

// Sessions returns every open session.
func (m *Manager) Sessions() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.view())
	}
	return out
}

// Back returns a PROPOSAL session to DIAGNOSTIC. The saved proposal is kept.
func (m *Manager) Back(id string) (Session, error) {
	return m.transition(id, StateProposal, StateDiagnostic, false)
}

// Review moves a DIAGNOSTIC session to PROPOSAL when a proposal exists.
func (m *Manager) Review(id string) (Session, error) {
	return m.transition(id, StateDiagnostic, StateProposal, true)
}

func (m *Manager) transition(id string, from, to State, needProposal bool) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	if s.state != from {
		return s.view(), fmt.Errorf("%w: %s is %s, want %s", ErrInvalidState, id, s.state, from)
	}
	if needProposal {
		src, ok := m.registry.Get(id)
		if !ok || !src.DriftDetails.HasProposal() {
			return s.view(), fmt.Errorf("%w: %s has no proposal", ErrInvalidState, id)
		}
	}
	s.state = to
	return s.view(), nil
}

// Cancel closes a session without touching the source. Executing sessions
// cannot be cancelled.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	if s.state == StateExecuting {
		return fmt.Errorf("%w: %s", ErrNotInterruptible, id)
	}
	delete(m.sessions, id)
	m.logger.Debug("resolver cancelled", "source_id", id)
	m.reportActiveLocked()
	return nil
}

// Reset closes every session. It fails with ErrBusy while a patch is
// executing or being committed.
func (m *Manager) Reset() error {
	return m.ResetWith(nil)
}

// ResetWith is Reset that also runs fn, when non-nil, after the sessions
// are closed and before any new session can be opened. fn is not called
// when Reset fails.
func (m *Manager) ResetWith(fn func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.state == StateExecuting || s.state == StateDone {
			return fmt.Errorf("%w: patch executing on %s", ErrBusy, id)
		}
	}
	clear(m.sessions)
	m.reportActiveLocked()
	if fn != nil {
		fn()
	}
	return nil
}

// Wait blocks until every execution started with Start has finished.
func (m *Manager) Wait() {
	m.running.Wait()
}

func (m *Manager) reportActiveLocked() {
	if m.cfg.Observer != nil {
		m.cfg.Observer.SetActiveSessions(len(m.sessions))
	}
}

// =============================================================================
// Proposal generation
// =============================================================================

// Generate asks the AI client for a resolution proposal.
//
// # Description
//
// Allowed in DIAGNOSTIC and PROPOSAL (regenerate). The response is split at
// its first fenced code block; analysis and code are saved onto the
// source's drift details and the session moves to PROPOSAL. On failure the
// session state is unchanged and the error is logged and returned.
//
// # Outputs
//
//   - error: ErrNoSession, ErrInvalidState, ErrBusy when a generation for
//     this source is already running, or the AI client's error (which
//     wraps analysis.ErrUnavailable).
func (m *Manager) Generate(ctx context.Context, id string) (Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	switch {
	case !ok:
		m.mu.Unlock()
		return Session{}, fmt.Errorf("%w: %s", ErrNoSession, id)
	case s.generating:
		view := s.view()
		m.mu.Unlock()
		return view, fmt.Errorf("%w: proposal already generating for %s", ErrBusy, id)
	case s.state != StateDiagnostic && s.state != StateProposal:
		view := s.view()
		m.mu.Unlock()
		return view, fmt.Errorf("%w: cannot generate while %s", ErrInvalidState, view.State)
	}
	s.generating = true
	m.mu.Unlock()

	err := m.generate(ctx, id)

	m.mu.Lock()
	defer m.mu.Unlock()
	s.generating = false
	if err != nil {
		s.lastErr = err.Error()
		return s.view(), err
	}
	s.state = StateProposal
	s.lastErr = ""
	return s.view(), nil
}

func (m *Manager) generate(ctx context.Context, id string) (err error) {
	ctx, span := tracer.Start(ctx, "resolver.Generate")
	span.SetAttributes(attribute.String("source.id", id), attribute.String("ai.mode", m.ai.Mode()))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	src, ok := m.registry.Get(id)
	if !ok || src.Status != datatypes.StatusDriftDetected || src.DriftDetails == nil {
		return fmt.Errorf("%w: source %s is no longer drifting", ErrInvalidState, id)
	}

	m.events.Info(datatypes.LogSourceAI, fmt.Sprintf("Starting analysis for source: %s...", id))
	m.events.Info(datatypes.LogSourceBackend, "Sending payload sample to AI model",
		truncate(src.DriftDetails.SamplePayload, 50))

	aiCtx, cancel := context.WithTimeout(ctx, m.cfg.AITimeout)
	text, err := m.ai.ProposeResolution(aiCtx, src)
	cancel()
	if err != nil {
		m.events.Error(datatypes.LogSourceAI, "Failed to analyze drift", err.Error())
		return fmt.Errorf("generate proposal for %s: %w", id, err)
	}

	proposal := markdown.ExtractCode(text)
	_, err = m.registry.Mutate(ctx, id, func(d *datatypes.DataSource) error {
		if d.Status != datatypes.StatusDriftDetected || d.DriftDetails == nil {
			return fmt.Errorf("%w: source %s is no longer drifting", ErrInvalidState, id)
		}
		d.DriftDetails.SolutionAnalysis = proposal.Analysis
		d.DriftDetails.SolutionCode = proposal.Code
		return nil
	})
	if err != nil {
		m.events.Error(datatypes.LogSourceAI, "Failed to analyze drift", err.Error())
		return err
	}

	m.events.Success(datatypes.LogSourceAI, "Drift analysis complete. Proposed SQLX changes saved to storage.")
	m.logger.Info("proposal generated", "source_id", id, "has_code", proposal.HasCode)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
