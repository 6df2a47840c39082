// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/DriftWarden/services/llm"
	"github.com/AleutianAI/DriftWarden/services/warden/clock"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
	"github.com/AleutianAI/DriftWarden/services/warden/markdown"
)

type fakeLLM struct {
	mu      sync.Mutex
	prompts []string
	params  []llm.GenerationParams
	reply   string
	err     error
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, params llm.GenerationParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.params = append(f.params, params)
	return f.reply, f.err
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) RecordAIRequest(op, mode, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, op+"/"+mode+"/"+outcome)
}

func driftingSource() datatypes.DataSource {
	return datatypes.DataSource{
		ID:     "src-7",
		Name:   "service_log_7_pubsub",
		Type:   datatypes.SourceTypePubSub,
		Status: datatypes.StatusDriftDetected,
		Schema: []datatypes.SchemaField{{Name: "event_id", Type: "STRING", Mode: "REQUIRED"}},
		DriftDetails: &datatypes.DriftDetails{
			UnexpectedFields: []datatypes.SchemaField{
				{Name: "feature_flag_42", Type: "boolean", Mode: "NULLABLE"},
				{Name: "score", Type: "FLOAT", Mode: "NULLABLE"},
			},
			MissingFields: []datatypes.SchemaField{},
		},
	}
}

// =============================================================================
// Mode selection
// =============================================================================

func TestUseLive(t *testing.T) {
	assert.False(t, UseLive(""))
	assert.False(t, UseLive("  "))
	assert.False(t, UseLive("demo"))
	assert.True(t, UseLive("AIza-real-key"))
}

func TestNew_SelectsMode(t *testing.T) {
	c, err := New(Options{Credential: "demo"})
	require.NoError(t, err)
	assert.Equal(t, ModeMock, c.Mode())

	c, err = New(Options{Credential: "key", LLM: llm.Config{Backend: llm.BackendGemini}})
	require.NoError(t, err)
	assert.Equal(t, ModeLive, c.Mode())

	_, err = New(Options{Credential: "key", LLM: llm.Config{Backend: "nope"}})
	assert.Error(t, err)
}

// =============================================================================
// Mock
// =============================================================================

func TestMockClient_Detect(t *testing.T) {
	fake := clock.NewFake(time.Time{})
	obs := &recordingObserver{}
	c := NewMockClient(fake, obs)

	report, err := c.Detect(context.Background(), nil, "{}")
	require.NoError(t, err)
	assert.Equal(t, MockDetectionReport, report)
	assert.Equal(t, []time.Duration{DefaultMockDetectDelay}, fake.Sleeps())
	assert.Equal(t, []string{"detect/mock/success"}, obs.calls)
}

func TestMockClient_CancelledIsUnavailable(t *testing.T) {
	c := NewMockClient(clock.NewFake(time.Time{}), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Detect(ctx, nil, "{}")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = c.ProposeResolution(ctx, driftingSource())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMockClient_ProposeResolution(t *testing.T) {
	fake := clock.NewFake(time.Time{})
	c := NewMockClient(fake, nil)

	text, err := c.ProposeResolution(context.Background(), driftingSource())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{DefaultMockResolveDelay}, fake.Sleeps())

	p := markdown.ExtractCode(text)
	require.True(t, p.HasCode)
	assert.True(t, strings.HasPrefix(p.Analysis, "### Drift Analysis"))
	assert.Contains(t, p.Code, "-- src-7.sqlx")
	assert.Contains(t, p.Code, `feature_flag_42 BOOLEAN options(description="Automatically detected new field")`)
	assert.Contains(t, p.Code, "score FLOAT")
	assert.Contains(t, p.Code, `${ref("events_raw")}`)
}

func TestMockSolution_NoDriftDetails(t *testing.T) {
	src := driftingSource()
	src.DriftDetails = nil
	text := MockSolution(src)
	assert.NotContains(t, text, "NEWLY ADDED FIELDS")
	assert.True(t, markdown.ExtractCode(text).HasCode)
}

// =============================================================================
// Live
// =============================================================================

func TestLiveClient_Detect(t *testing.T) {
	backend := &fakeLLM{reply: "- **Status:** Drift Detected"}
	obs := &recordingObserver{}
	c := NewLiveClient(backend, LiveConfig{Temperature: 0.2}, nil, obs)

	schema := []datatypes.SchemaField{{Name: "event_id", Type: "STRING", Mode: "REQUIRED"}}
	report, err := c.Detect(context.Background(), schema, `{"x":true}`)
	require.NoError(t, err)
	assert.Equal(t, "- **Status:** Drift Detected", report)

	require.Len(t, backend.prompts, 1)
	assert.Contains(t, backend.prompts[0], `Current Schema: [{"name":"event_id","type":"STRING","mode":"REQUIRED"}]`)
	assert.Contains(t, backend.prompts[0], `Incoming Payload: {"x":true}`)
	require.NotNil(t, backend.params[0].Temperature)
	assert.InDelta(t, 0.2, *backend.params[0].Temperature, 1e-6)
	assert.Equal(t, []string{"detect/live/success"}, obs.calls)
}

func TestLiveClient_DetectBlankIsInconclusive(t *testing.T) {
	c := NewLiveClient(&fakeLLM{reply: "  \n"}, LiveConfig{}, nil, nil)
	report, err := c.Detect(context.Background(), nil, "{}")
	require.NoError(t, err)
	assert.Equal(t, InconclusiveReport, report)
}

func TestLiveClient_ProposeResolution(t *testing.T) {
	backend := &fakeLLM{reply: "analysis\n```sqlx\nSELECT 1\n```"}
	c := NewLiveClient(backend, LiveConfig{}, nil, nil)

	text, err := c.ProposeResolution(context.Background(), driftingSource())
	require.NoError(t, err)
	assert.Equal(t, backend.reply, text)

	prompt := backend.prompts[0]
	assert.Contains(t, prompt, `A data source named "service_log_7_pubsub" (Type: PubSub)`)
	assert.Contains(t, prompt, `"feature_flag_42"`)
}

func TestLiveClient_BackendErrorIsUnavailable(t *testing.T) {
	obs := &recordingObserver{}
	c := NewLiveClient(&fakeLLM{err: errors.New("503")}, LiveConfig{}, nil, obs)

	_, err := c.Detect(context.Background(), nil, "{}")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = c.ProposeResolution(context.Background(), driftingSource())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, []string{"detect/live/error", "resolve/live/error"}, obs.calls)
}

func TestLiveClient_EmptyResolutionIsUnavailable(t *testing.T) {
	c := NewLiveClient(&fakeLLM{reply: ""}, LiveConfig{}, nil, nil)
	_, err := c.ProposeResolution(context.Background(), driftingSource())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLiveClient_RateLimitHonorsContext(t *testing.T) {
	c := NewLiveClient(&fakeLLM{reply: "ok"}, LiveConfig{RatePerSecond: 0.001, Burst: 1}, nil, nil)

	_, err := c.Detect(context.Background(), nil, "{}")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Detect(ctx, nil, "{}")
	assert.ErrorIs(t, err, ErrUnavailable)
}
