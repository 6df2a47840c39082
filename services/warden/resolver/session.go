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
	"errors"
	"time"
)

var (
	// ErrNoSession is returned when no resolver is open for the source.
	ErrNoSession = errors.New("no resolver session for source")

	// ErrInvalidState is returned when an operation is not allowed in the
	// session's (or source's) current state.
	ErrInvalidState = errors.New("invalid resolver state")

	// ErrBusy is returned when a proposal is already being generated.
	ErrBusy = errors.New("resolver is busy")

	// ErrNotInterruptible is returned when cancelling an executing patch.
	ErrNotInterruptible = errors.New("patch execution cannot be interrupted")

	// ErrPhaseFailed wraps the error of a failed execution phase.
	ErrPhaseFailed = errors.New("patch phase failed")
)

// State is a resolver session step.
type State string

const (
	StateDiagnostic State = "DIAGNOSTIC"
	StateProposal   State = "PROPOSAL"
	StateExecuting  State = "EXECUTING"
	StateDone       State = "DONE"
)

// Execution phases, in order.
const (
	PhaseGit     = "git"
	PhaseCompile = "compile"
	PhaseDeploy  = "deploy"
	PhaseDone    = "done"
)

// Phases lists the execution phases in the order they run.
var Phases = []string{PhaseGit, PhaseCompile, PhaseDeploy, PhaseDone}

// Session is a snapshot of one source's resolver.
type Session struct {
	SourceID   string    `json:"source_id"`
	State      State     `json:"state"`
	OpenedAt   time.Time `json:"opened_at"`
	Generating bool      `json:"generating"`

	// Phase is the running execution phase while State is EXECUTING.
	Phase string `json:"phase,omitempty"`

	// LastError is the most recent generation or execution failure.
	LastError string `json:"last_error,omitempty"`
}

type session struct {
	sourceID   string
	state      State
	openedAt   time.Time
	generating bool
	phase      string
	lastErr    string
}

func (s *session) view() Session {
	return Session{
		SourceID:   s.sourceID,
		State:      s.state,
		OpenedAt:   s.openedAt,
		Generating: s.generating,
		Phase:      s.phase,
		LastError:  s.lastErr,
	}
}
