// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package saga runs ordered steps with per-step timeouts and undoes the
// completed ones, newest first, when a later step fails.
package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AleutianAI/DriftWarden/pkg/logging"
)

// ErrStepTimeout is wrapped by the error of a step that outlived its timeout.
var ErrStepTimeout = errors.New("step timed out")

// =============================================================================
// Step
// =============================================================================

// Step is one forward action and its optional undo.
//
// # Description
//
// Run performs the action. Undo reverts it when a later step fails and may
// be nil when there is nothing to revert. Undo should be idempotent.
//
// # Example
//
//	saga.Step{
//	    Name: "git",
//	    Run:  createBranch,
//	    Undo: deleteBranch,
//	}
type Step struct {
	Name string
	Run  func(ctx context.Context) error
	Undo func(ctx context.Context) error

	// Timeout overrides Config.StepTimeout when positive.
	Timeout time.Duration
}

// =============================================================================
// Configuration
// =============================================================================

// Config tunes a Saga. Zero values fall back to the defaults below.
type Config struct {
	// StepTimeout bounds each Run. Default: 30 seconds.
	StepTimeout time.Duration

	// UndoTimeout bounds each Undo. Default: 10 seconds.
	UndoTimeout time.Duration

	Logger *logging.Logger

	OnStepStart func(step Step)
	OnStepDone  func(step Step, elapsed time.Duration)
	OnStepFail  func(step Step, err error)
	OnUndo      func(step Step, err error)
}

const (
	defaultStepTimeout = 30 * time.Second
	defaultUndoTimeout = 10 * time.Second
)

// Result summarizes one Run.
type Result struct {
	Completed  []string
	FailedStep string
	Err        error
	UndoErrors []UndoError
	Elapsed    time.Duration
}

// Succeeded reports whether every step completed.
func (r Result) Succeeded() bool { return r.Err == nil }

// UndoError records a failed undo.
type UndoError struct {
	Step string
	Err  error
}

// =============================================================================
// Saga
// =============================================================================

// Saga executes its steps in order.
//
// # Thread Safety
//
// Run calls on one Saga are serialized. Steps never run in parallel.
type Saga struct {
	cfg   Config
	steps []Step
	mu    sync.Mutex
}

// New creates a Saga over steps.
func New(cfg Config, steps ...Step) *Saga {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = defaultStepTimeout
	}
	if cfg.UndoTimeout <= 0 {
		cfg.UndoTimeout = defaultUndoTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return &Saga{cfg: cfg, steps: steps}
}

// Steps returns the step names in execution order.
func (s *Saga) Steps() []string {
	names := make([]string, len(s.steps))
	for i, st := range s.steps {
		names[i] = st.Name
	}
	return names
}

// Run executes every step.
//
// # Description
//
// Steps run one after another, each under its own timeout derived from
// ctx. On the first failure the completed steps are undone in reverse
// order on a context detached from ctx, so a cancelled caller still gets
// its cleanup. Undo failures are collected, never returned as the error.
//
// # Outputs
//
//   - Result: what ran, what failed, what could not be undone.
//   - error: nil on success, otherwise the failing step's error wrapped
//     with its name.
func (s *Saga) Run(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	var res Result
	done := make([]Step, 0, len(s.steps))

	for _, step := range s.steps {
		err := ctx.Err()
		if err == nil {
			err = s.runStep(ctx, step)
		}
		if err != nil {
			if s.cfg.OnStepFail != nil {
				s.cfg.OnStepFail(step, err)
			}
			res.FailedStep = step.Name
			res.Err = fmt.Errorf("step %q: %w", step.Name, err)
			res.UndoErrors = s.undo(ctx, done)
			res.Elapsed = time.Since(start)
			return res, res.Err
		}
		done = append(done, step)
		res.Completed = append(res.Completed, step.Name)
	}

	res.Elapsed = time.Since(start)
	return res, nil
}

func (s *Saga) runStep(ctx context.Context, step Step) error {
	if s.cfg.OnStepStart != nil {
		s.cfg.OnStepStart(step)
	}
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = s.cfg.StepTimeout
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result := make(chan error, 1)
	go func() { result <- step.Run(stepCtx) }()

	select {
	case err := <-result:
		elapsed := time.Since(start)
		if err != nil {
			s.cfg.Logger.Warn("saga step failed", "step", step.Name, "elapsed", elapsed, "error", err)
			return err
		}
		s.cfg.Logger.Debug("saga step done", "step", step.Name, "elapsed", elapsed)
		if s.cfg.OnStepDone != nil {
			s.cfg.OnStepDone(step, elapsed)
		}
		return nil
	case <-stepCtx.Done():
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w after %v", ErrStepTimeout, timeout)
		}
		return stepCtx.Err()
	}
}

func (s *Saga) undo(ctx context.Context, done []Step) []UndoError {
	var errs []UndoError
	base := context.WithoutCancel(ctx)
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Undo == nil {
			continue
		}
		undoCtx, cancel := context.WithTimeout(base, s.cfg.UndoTimeout)
		err := step.Undo(undoCtx)
		cancel()

		if err != nil {
			s.cfg.Logger.Warn("saga undo failed", "step", step.Name, "error", err)
			errs = append(errs, UndoError{Step: step.Name, Err: err})
		} else {
			s.cfg.Logger.Debug("saga step undone", "step", step.Name)
		}
		if s.cfg.OnUndo != nil {
			s.cfg.OnUndo(step, err)
		}
	}
	return errs
}
