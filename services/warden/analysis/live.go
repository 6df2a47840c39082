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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/prompts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/DriftWarden/pkg/logging"
	"github.com/AleutianAI/DriftWarden/services/llm"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
)

var tracer = otel.Tracer("warden.analysis")

// InconclusiveReport is returned by Detect when the backend answers with
// nothing but whitespace.
const InconclusiveReport = "Analysis inconclusive."

const detectTemplate = `Role: Data Quality AI.
Task: Analyze if the JSON payload fits the current BigQuery Schema.

Current Schema: {{.schema}}
Incoming Payload: {{.payload}}

Instructions:
1. Identify fields in Payload that are missing from Schema.
2. Determine if this looks like valid data evolution (new features) or garbage/error data.
3. Provide a concise detection report formatted in Markdown with bullet points.`

const resolveTemplate = `You are a Data Engineering Assistant specializing in Google Cloud.

Context:
A data source named "{{.name}}" (Type: {{.type}}) is experiencing schema drift.

Current Schema:
{{.schema}}

Drift Details (Unexpected Fields):
{{.drift}}

Task:
1. Analyze the risk of this drift.
2. Generate a Dataform (.sqlx) code snippet that safely incorporates these new fields.

Output format rules:
- Provide a brief markdown analysis first.
- Then provide the code block enclosed in triple backticks with 'sqlx' language identifier.`

// LiveConfig tunes LiveClient.
type LiveConfig struct {
	// Timeout bounds each backend call. Zero means 60s.
	Timeout time.Duration
	// RatePerSecond and Burst configure the request limiter. Zero rate
	// disables limiting.
	RatePerSecond float64
	Burst         int
	// Temperature is sent with every request.
	Temperature float32
}

// LiveClient sends prompts to an LLM backend.
//
// # Thread Safety
//
// Safe for concurrent use. Concurrent callers share the rate limiter.
type LiveClient struct {
	backend  llm.LLMClient
	limiter  *rate.Limiter
	timeout  time.Duration
	params   llm.GenerationParams
	detect   prompts.PromptTemplate
	resolve  prompts.PromptTemplate
	logger   *logging.Logger
	observer Observer
}

// NewLiveClient wraps backend.
func NewLiveClient(backend llm.LLMClient, cfg LiveConfig, logger *logging.Logger, observer Observer) *LiveClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = logging.Nop()
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	temp := cfg.Temperature
	return &LiveClient{
		backend:  backend,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		timeout:  cfg.Timeout,
		params:   llm.GenerationParams{Temperature: &temp},
		detect:   prompts.NewPromptTemplate(detectTemplate, []string{"schema", "payload"}),
		resolve:  prompts.NewPromptTemplate(resolveTemplate, []string{"name", "type", "schema", "drift"}),
		logger:   logger.With("component", "analysis"),
		observer: observer,
	}
}

// Mode implements Client.
func (c *LiveClient) Mode() string { return ModeLive }

// Detect implements Client.
func (c *LiveClient) Detect(ctx context.Context, schema []datatypes.SchemaField, payload string) (report string, err error) {
	defer func(start time.Time) { observe(c.observer, "detect", ModeLive, start, err) }(time.Now())

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("%w: encode schema: %v", ErrUnavailable, err)
	}
	prompt, err := c.detect.Format(map[string]any{
		"schema":  string(schemaJSON),
		"payload": payload,
	})
	if err != nil {
		return "", fmt.Errorf("%w: render detect prompt: %v", ErrUnavailable, err)
	}

	text, err := c.generate(ctx, "detect", prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return InconclusiveReport, nil
	}
	return text, nil
}

// ProposeResolution implements Client.
func (c *LiveClient) ProposeResolution(ctx context.Context, source datatypes.DataSource) (text string, err error) {
	defer func(start time.Time) { observe(c.observer, "resolve", ModeLive, start, err) }(time.Now())

	schemaJSON, err := json.Marshal(source.Schema)
	if err != nil {
		return "", fmt.Errorf("%w: encode schema: %v", ErrUnavailable, err)
	}
	driftJSON, err := json.Marshal(source.DriftDetails)
	if err != nil {
		return "", fmt.Errorf("%w: encode drift details: %v", ErrUnavailable, err)
	}
	prompt, err := c.resolve.Format(map[string]any{
		"name":   source.Name,
		"type":   string(source.Type),
		"schema": string(schemaJSON),
		"drift":  string(driftJSON),
	})
	if err != nil {
		return "", fmt.Errorf("%w: render resolve prompt: %v", ErrUnavailable, err)
	}

	text, err = c.generate(ctx, "resolve", prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	return text, nil
}

func (c *LiveClient) generate(ctx context.Context, op, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "analysis."+op)
	defer span.End()
	span.SetAttributes(attribute.Int("prompt.chars", len(prompt)))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		span.SetStatus(codes.Error, "rate limited")
		return "", fmt.Errorf("%w: rate limiter: %v", ErrUnavailable, err)
	}

	text, err := c.backend.Generate(ctx, prompt, c.params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("analysis backend call failed", "op", op, "error", err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	span.SetAttributes(attribute.Int("response.chars", len(text)))
	return text, nil
}

var _ Client = (*LiveClient)(nil)
