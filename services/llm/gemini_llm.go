// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiClient talks to the Gemini API through the langchaingo googleai
// provider.
type GeminiClient struct {
	model   llms.Model
	name    string
	timeout time.Duration
}

// NewGeminiClient builds a googleai model for cfg.Model. cfg.BaseURL, when
// set, replaces the API endpoint.
func NewGeminiClient(cfg Config, key *Secret) (*GeminiClient, error) {
	apiKey, err := key.Reveal()
	if err != nil {
		return nil, fmt.Errorf("gemini credential: %w", err)
	}
	name := cfg.Model
	if name == "" {
		name = defaultGeminiModel
	}

	opts := []googleai.Option{
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(name),
	}
	if cfg.BaseURL != "" {
		endpoint, err := geminiEndpoint(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, withClientOption(option.WithEndpoint(endpoint)))
	}

	model, err := googleai.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	slog.Info("Initializing Gemini client", "model", name)
	return newGeminiClient(model, name, cfg.Timeout), nil
}

func newGeminiClient(model llms.Model, name string, timeout time.Duration) *GeminiClient {
	return &GeminiClient{model: model, name: name, timeout: timeout}
}

// Generate implements the LLMClient interface
func (g *GeminiClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "GeminiClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", g.name))

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt, geminiCallOptions(params)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Gemini API call failed", "error", err)
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	span.SetAttributes(attribute.Int("llm.response_chars", len(out)))
	return out, nil
}

// geminiCallOptions maps the set fields of params; unset ones keep the
// provider defaults.
func geminiCallOptions(params GenerationParams) []llms.CallOption {
	var opts []llms.CallOption
	if params.Temperature != nil {
		opts = append(opts, llms.WithTemperature(float64(*params.Temperature)))
	}
	if params.TopK != nil {
		opts = append(opts, llms.WithTopK(*params.TopK))
	}
	if params.TopP != nil {
		opts = append(opts, llms.WithTopP(float64(*params.TopP)))
	}
	if params.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*params.MaxTokens))
	}
	if len(params.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(params.Stop))
	}
	return opts
}

// geminiEndpoint turns a base URL such as https://host or host:port into
// the host:port form the gRPC transport expects.
func geminiEndpoint(baseURL string) (string, error) {
	raw := strings.TrimSpace(baseURL)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("invalid gemini base URL %q", baseURL)
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

func withClientOption(opt option.ClientOption) googleai.Option {
	return func(o *googleai.Options) {
		o.ClientOptions = append(o.ClientOptions, opt)
	}
}
