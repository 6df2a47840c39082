// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis is the AI collaborator of the drift workflows.
//
// It answers two questions: "does this payload drift from this schema?"
// (Detect) and "how should this drift be resolved?" (ProposeResolution).
// Both answers are markdown text. The mock implementation returns canned
// answers after a realistic delay; the live implementation sends prompts
// to an llm.LLMClient backend.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/DriftWarden/pkg/logging"
	"github.com/AleutianAI/DriftWarden/services/llm"
	"github.com/AleutianAI/DriftWarden/services/warden/clock"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
)

// ErrUnavailable wraps every failure to obtain an answer from the backend.
var ErrUnavailable = errors.New("analysis backend unavailable")

// Modes reported by Client.Mode.
const (
	ModeMock = "mock"
	ModeLive = "live"
)

// DemoCredential forces mock mode even when set as the credential.
const DemoCredential = "demo"

// Client produces drift analysis text.
type Client interface {
	// Detect assesses payload against schema and returns a markdown report.
	Detect(ctx context.Context, schema []datatypes.SchemaField, payload string) (string, error)

	// ProposeResolution returns markdown analysis followed by a fenced
	// code block with the proposed table definition.
	ProposeResolution(ctx context.Context, source datatypes.DataSource) (string, error)

	// Mode returns ModeMock or ModeLive.
	Mode() string
}

// Observer records backend calls. Implemented by the metrics layer.
type Observer interface {
	RecordAIRequest(op, mode, outcome string, duration time.Duration)
}

// UseLive reports whether credential selects live mode.
func UseLive(credential string) bool {
	c := strings.TrimSpace(credential)
	return c != "" && c != DemoCredential
}

// Options selects and configures a Client.
type Options struct {
	// Credential is the API key. Empty or DemoCredential selects mock mode.
	Credential string
	LLM        llm.Config
	Live       LiveConfig
	Clock      clock.Clock
	Logger     *logging.Logger
	Observer   Observer
}

// New returns a MockClient or a LiveClient depending on opts.Credential.
//
// # Outputs
//
//   - Client: Never nil when error is nil.
//   - error: Non-nil when live mode was requested but the backend could
//     not be built. Callers typically fall back to NewMockClient.
func New(opts Options) (Client, error) {
	if !UseLive(opts.Credential) {
		return NewMockClient(opts.Clock, opts.Observer), nil
	}
	backend, err := llm.NewClient(opts.LLM, llm.NewSecret(strings.TrimSpace(opts.Credential)))
	if err != nil {
		return nil, fmt.Errorf("build %s backend: %w", opts.LLM.Backend, err)
	}
	return NewLiveClient(backend, opts.Live, opts.Logger, opts.Observer), nil
}

func observe(o Observer, op, mode string, start time.Time, err error) {
	if o == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	o.RecordAIRequest(op, mode, outcome, time.Since(start))
}
