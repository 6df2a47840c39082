// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"sync"
	"time"
)

// SpinnerType defines the animation style.
type SpinnerType int

const (
	SpinnerDots SpinnerType = iota
	SpinnerPulse
)

var spinnerFrames = map[SpinnerType][]string{
	SpinnerDots:  {"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
	SpinnerPulse: {"◐", "◓", "◑", "◒"},
}

const spinnerInterval = 80 * time.Millisecond

// Spinner animates a one-line progress indicator. Outside full mode it
// prints the message once instead.
type Spinner struct {
	message    string
	spinType   SpinnerType
	stop       chan struct{}
	done       chan struct{}
	mu         sync.Mutex
	running    bool
	animated   bool
	frameIndex int
}

// NewSpinner creates a stopped spinner.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message:  message,
		spinType: SpinnerDots,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// WithType sets the animation style.
func (s *Spinner) WithType(t SpinnerType) *Spinner {
	s.spinType = t
	return s
}

// Start begins the animation. Calling Start twice is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.animated = ShouldShowProgress()
	msg := s.message
	s.mu.Unlock()

	if !s.animated {
		printProgress(msg)
		return
	}

	go func() {
		frames := spinnerFrames[s.spinType]
		ticker := time.NewTicker(spinnerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				fmt.Fprint(out(), "\r\033[K")
				close(s.done)
				return
			case <-ticker.C:
				s.mu.Lock()
				frame := Styles.Highlight.Render(frames[s.frameIndex])
				fmt.Fprintf(out(), "\r\033[K%s %s", frame, s.message)
				s.frameIndex = (s.frameIndex + 1) % len(frames)
				s.mu.Unlock()
			}
		}
	}()
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	animated := s.animated
	s.mu.Unlock()

	if !animated {
		return
	}
	close(s.stop)
	<-s.done
}

// UpdateMessage changes the message while running. Outside full mode a
// changed message is printed as a new progress line.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	changed := s.message != message
	s.message = message
	static := s.running && !s.animated
	s.mu.Unlock()

	if changed && static {
		printProgress(message)
	}
}

// Run starts the spinner, calls fn with it and stops the spinner when fn
// returns. Reporting the outcome is left to the caller.
func (s *Spinner) Run(fn func(spin *Spinner) error) error {
	s.Start()
	defer s.Stop()
	return fn(s)
}

// WithSpinner runs fn behind a dots spinner showing message.
func WithSpinner(message string, fn func(spin *Spinner) error) error {
	return NewSpinner(message).Run(fn)
}

func printProgress(msg string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(out(), "PROGRESS: %s\n", msg)
		return
	}
	fmt.Fprintf(out(), "%s %s\n", IconPending.Render(), msg)
}
