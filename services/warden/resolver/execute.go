// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/DriftWarden/pkg/saga"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
)

// Execute applies the saved proposal and blocks until it is committed.
//
// # Description
//
// Moves a PROPOSAL session to EXECUTING and runs the four phases in order.
// The phases run on a context detached from ctx: once started, a patch
// runs to completion. On success the source becomes HEALTHY with the new
// fields and a new history entry, and the session is closed. When a phase
// fails the source is left untouched and the session returns to PROPOSAL.
//
// # Outputs
//
//   - Session: DONE on success, PROPOSAL after a failed phase.
//   - error: ErrNoSession, ErrInvalidState, ErrBusy while a generation is
//     running, or the failing phase's error.
func (m *Manager) Execute(ctx context.Context, id string) (Session, error) {
	s, err := m.beginExecute(id)
	if err != nil {
		return Session{}, err
	}
	return m.execute(context.WithoutCancel(ctx), s)
}

// Start is Execute without waiting. It returns the EXECUTING session once
// the transition is accepted; progress is visible through Get.
func (m *Manager) Start(ctx context.Context, id string) (Session, error) {
	s, err := m.beginExecute(id)
	if err != nil {
		return Session{}, err
	}
	m.mu.Lock()
	view := s.view()
	m.mu.Unlock()

	m.running.Add(1)
	go func() {
		defer m.running.Done()
		_, _ = m.execute(context.WithoutCancel(ctx), s)
	}()
	return view, nil
}

func (m *Manager) beginExecute(id string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	if s.generating {
		return nil, fmt.Errorf("%w: proposal still generating for %s", ErrBusy, id)
	}
	if s.state != StateProposal {
		return nil, fmt.Errorf("%w: cannot execute while %s", ErrInvalidState, s.state)
	}
	src, ok := m.registry.Get(id)
	if !ok || src.Status != datatypes.StatusDriftDetected || !src.DriftDetails.HasProposal() {
		return nil, fmt.Errorf("%w: %s has no proposal to apply", ErrInvalidState, id)
	}
	s.state = StateExecuting
	s.phase = ""
	s.lastErr = ""
	return s, nil
}

func (m *Manager) execute(ctx context.Context, s *session) (Session, error) {
	id := s.sourceID
	ctx, span := tracer.Start(ctx, "resolver.Execute")
	span.SetAttributes(attribute.String("source.id", id))
	defer span.End()

	run := saga.New(saga.Config{
		StepTimeout: m.cfg.StepTimeout,
		Logger:      m.logger,
		OnStepStart: func(step saga.Step) {
			m.mu.Lock()
			s.phase = step.Name
			m.mu.Unlock()
		},
		OnStepDone: func(step saga.Step, elapsed time.Duration) {
			span.AddEvent("phase " + step.Name)
			if m.cfg.Observer != nil {
				m.cfg.Observer.RecordPhase(step.Name, elapsed)
			}
		},
	}, m.phases(id)...)

	if _, err := run.Run(ctx); err != nil {
		err = fmt.Errorf("%w: %w", ErrPhaseFailed, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.events.Error(datatypes.LogSourceSystem,
			fmt.Sprintf("Automated schema patch failed for %s", id), err.Error())
		m.logger.Warn("patch execution failed", "source_id", id, "error", err)
		return m.finishFailed(s, err)
	}

	m.mu.Lock()
	s.state = StateDone
	m.mu.Unlock()

	patchID := m.cfg.NewPatchID()
	_, err := m.registry.Mutate(ctx, id, func(src *datatypes.DataSource) error {
		return ApplyResolution(src, patchID, m.clock.Now())
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.events.Error(datatypes.LogSourceSystem,
			fmt.Sprintf("Automated schema patch failed for %s", id), err.Error())
		return m.finishFailed(s, err)
	}

	m.mu.Lock()
	view := s.view()
	if m.sessions[id] == s {
		delete(m.sessions, id)
		m.reportActiveLocked()
	}
	m.mu.Unlock()

	m.events.Success(datatypes.LogSourceSystem,
		fmt.Sprintf("Source %s schema updated and status reset to HEALTHY.", id))
	m.logger.Info("drift resolved", "source_id", id, "patch_id", patchID)
	if m.cfg.Observer != nil {
		m.cfg.Observer.RecordResolution("resolved")
	}
	return view, nil
}

func (m *Manager) finishFailed(s *session, err error) (Session, error) {
	m.mu.Lock()
	s.state = StateProposal
	s.phase = ""
	s.lastErr = err.Error()
	view := s.view()
	m.mu.Unlock()

	if m.cfg.Observer != nil {
		m.cfg.Observer.RecordResolution("failed")
	}
	return view, err
}

// phases builds the ordered execution steps for source id.
func (m *Manager) phases(id string) []saga.Step {
	var branch string
	d := m.cfg.Delays

	return []saga.Step{
		{
			Name: PhaseGit,
			Run: func(ctx context.Context) error {
				m.events.Info(datatypes.LogSourceSystem, fmt.Sprintf("Initializing automated schema patch for %s", id))
				if err := m.pause(ctx, id, PhaseGit, d.Git); err != nil {
					return err
				}
				branch = fmt.Sprintf("fix/schema-drift-%04d", m.clock.Now().UnixMilli()%10000)
				m.events.Info(datatypes.LogSourceBackend, fmt.Sprintf("Git: Created branch '%s'", branch))
				m.events.Info(datatypes.LogSourceBackend, fmt.Sprintf("Git: Committed file '%s.sqlx'", id))
				return nil
			},
			Undo: func(context.Context) error {
				m.events.Warn(datatypes.LogSourceBackend, fmt.Sprintf("Git: Deleted branch '%s'", branch))
				return nil
			},
		},
		{
			Name: PhaseCompile,
			Run: func(ctx context.Context) error {
				if err := m.pause(ctx, id, PhaseCompile, d.Compile); err != nil {
					return err
				}
				m.events.Info(datatypes.LogSourceDataform, "Compiling project...")
				m.events.Success(datatypes.LogSourceDataform, "Compilation successful. Validated new schema fields.")
				return nil
			},
		},
		{
			Name: PhaseDeploy,
			Run: func(ctx context.Context) error {
				if err := m.pause(ctx, id, PhaseDeploy, d.Deploy); err != nil {
					return err
				}
				m.events.Info(datatypes.LogSourceBigQuery, fmt.Sprintf("Job Submitted: ALTER TABLE %s ADD COLUMNS...", id))
				m.events.Success(datatypes.LogSourceBigQuery, "Schema evolution applied. Table is now writable.")
				return nil
			},
			Undo: func(context.Context) error {
				m.events.Warn(datatypes.LogSourceBigQuery, fmt.Sprintf("Rolled back schema change on %s.", id))
				return nil
			},
		},
		{
			Name: PhaseDone,
			Run: func(ctx context.Context) error {
				return m.pause(ctx, id, PhaseDone, d.Done)
			},
		},
	}
}

// pause sleeps for the phase delay and then consults the hook.
func (m *Manager) pause(ctx context.Context, id, phase string, delay time.Duration) error {
	if err := m.clock.Sleep(ctx, delay); err != nil {
		return err
	}
	if m.cfg.Hook != nil {
		return m.cfg.Hook(ctx, id, phase)
	}
	return nil
}

// ApplyResolution commits a resolution onto src.
//
// # Description
//
// The unexpected fields are appended to the schema in order, skipping any
// name already present. A patch recording the fields actually added is
// prepended to the history, the status returns to HEALTHY and the drift
// details are cleared.
//
// # Outputs
//
//   - error: ErrInvalidState when src is not drifting.
func ApplyResolution(src *datatypes.DataSource, patchID string, at time.Time) error {
	if src.Status != datatypes.StatusDriftDetected || src.DriftDetails == nil {
		return fmt.Errorf("%w: source %s is %s", ErrInvalidState, src.ID, src.Status)
	}

	added := make([]datatypes.SchemaField, 0, len(src.DriftDetails.UnexpectedFields))
	for _, f := range src.DriftDetails.UnexpectedFields {
		if src.HasField(f.Name) {
			continue
		}
		src.Schema = append(src.Schema, f)
		added = append(added, f)
	}

	patch := datatypes.SchemaPatch{
		ID:          patchID,
		AppliedAt:   at,
		Description: PatchDescription,
		AddedFields: added,
	}
	src.History = append([]datatypes.SchemaPatch{patch}, src.History...)
	src.Status = datatypes.StatusHealthy
	src.DriftDetails = nil
	return nil
}
