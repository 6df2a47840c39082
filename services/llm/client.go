// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm holds the text-generation backends used by live analysis mode.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("warden.llm")

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// Backend names accepted by Config.Backend.
const (
	BackendGemini    = "gemini"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
	BackendOllama    = "ollama"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	Model   string
	// BaseURL overrides the provider endpoint. Required for ollama.
	BaseURL string
	Timeout time.Duration
}

// NewClient builds the backend named by cfg.Backend. Hosted backends need a
// non-empty key; ollama ignores it.
func NewClient(cfg Config, key *Secret) (LLMClient, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendGemini
	}
	if backend != BackendOllama && key.Empty() {
		return nil, fmt.Errorf("backend %s requires an API key", backend)
	}

	switch backend {
	case BackendGemini:
		c, err := NewGeminiClient(cfg, key)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendOpenAI:
		return NewOpenAIClient(cfg, key), nil
	case BackendAnthropic:
		return NewAnthropicClient(cfg, key), nil
	case BackendOllama:
		return NewOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}
}

// httpClientWithKey returns an http.Client that injects the key from s into
// header on every request.
func httpClientWithKey(timeout time.Duration, s *Secret, header, prefix string) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &secretTransport{
			base:   http.DefaultTransport,
			secret: s,
			header: header,
			prefix: prefix,
		},
	}
}
