// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
	"github.com/AleutianAI/DriftWarden/services/warden/resolver"
	"github.com/AleutianAI/DriftWarden/services/warden/simulator"
)

// APIError is a non-2xx response from the warden service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("warden returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("warden returned %d: %s", e.Status, e.Message)
}

// IsConflict reports whether err is a 409 from the service.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Health is the /health payload.
type Health struct {
	Status  string `json:"status"`
	AIMode  string `json:"ai_mode"`
	Sources int    `json:"sources"`
}

// SourceView is the GET /v1/sources/:id payload.
type SourceView struct {
	Source  datatypes.DataSource `json:"source" yaml:"source"`
	Version string               `json:"version" yaml:"version"`
	Patches int                  `json:"patches" yaml:"patches"`
}

// WardenClient talks to the warden HTTP API.
//
// # Thread Safety
//
// Safe for concurrent use.
type WardenClient struct {
	baseURL string
	http    *http.Client
}

// NewWardenClient creates a client for baseURL, e.g. http://localhost:12310.
func NewWardenClient(baseURL string, timeout time.Duration) *WardenClient {
	return &WardenClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// =============================================================================
// Sources
// =============================================================================

func (c *WardenClient) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &h)
	return h, err
}

func (c *WardenClient) ListSources(ctx context.Context, q datatypes.SourceQuery) ([]datatypes.DataSource, error) {
	params := url.Values{}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.Type != "" {
		params.Set("type", q.Type)
	}
	var body struct {
		Sources []datatypes.DataSource `json:"sources"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/sources", params, &body); err != nil {
		return nil, err
	}
	return body.Sources, nil
}

func (c *WardenClient) GetSource(ctx context.Context, id string) (SourceView, error) {
	var v SourceView
	err := c.do(ctx, http.MethodGet, "/v1/sources/"+url.PathEscape(id), nil, &v)
	return v, err
}

func (c *WardenClient) Stats(ctx context.Context) (datatypes.SourceStats, error) {
	var s datatypes.SourceStats
	err := c.do(ctx, http.MethodGet, "/v1/sources/stats", nil, &s)
	return s, err
}

// ResetDemo restores the seed collection and returns the new stats.
func (c *WardenClient) ResetDemo(ctx context.Context) (datatypes.SourceStats, error) {
	var body struct {
		Stats datatypes.SourceStats `json:"stats"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/demo/reset", nil, &body)
	return body.Stats, err
}

// =============================================================================
// Workflows
// =============================================================================

func (c *WardenClient) Simulate(ctx context.Context) (simulator.Result, error) {
	var r simulator.Result
	err := c.do(ctx, http.MethodPost, "/v1/drift/simulate", nil, &r)
	return r, err
}

func (c *WardenClient) OpenResolver(ctx context.Context, id string) (resolver.Session, error) {
	return c.session(ctx, http.MethodPost, id, "", nil)
}

func (c *WardenClient) GetResolver(ctx context.Context, id string) (resolver.Session, error) {
	return c.session(ctx, http.MethodGet, id, "", nil)
}

func (c *WardenClient) Generate(ctx context.Context, id string) (resolver.Session, error) {
	return c.session(ctx, http.MethodPost, id, "/generate", nil)
}

func (c *WardenClient) Review(ctx context.Context, id string) (resolver.Session, error) {
	return c.session(ctx, http.MethodPost, id, "/review", nil)
}

// Execute runs the patch. With wait the call returns once the workflow
// has finished; otherwise it returns the EXECUTING session.
func (c *WardenClient) Execute(ctx context.Context, id string, wait bool) (resolver.Session, error) {
	params := url.Values{}
	if wait {
		params.Set("wait", strconv.FormatBool(true))
	}
	return c.session(ctx, http.MethodPost, id, "/execute", params)
}

func (c *WardenClient) CancelResolver(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, resolverPath(id, ""), nil, nil)
}

func (c *WardenClient) Preview(ctx context.Context, id string) (resolver.Preview, error) {
	var p resolver.Preview
	err := c.do(ctx, http.MethodGet, resolverPath(id, "/preview"), nil, &p)
	return p, err
}

func (c *WardenClient) session(ctx context.Context, method, id, suffix string, params url.Values) (resolver.Session, error) {
	var s resolver.Session
	err := c.do(ctx, method, resolverPath(id, suffix), params, &s)
	return s, err
}

func resolverPath(id, suffix string) string {
	return "/v1/sources/" + url.PathEscape(id) + "/resolver" + suffix
}

// =============================================================================
// Logs
// =============================================================================

func (c *WardenClient) Logs(ctx context.Context, q datatypes.LogQuery) ([]datatypes.LogEntry, error) {
	params := url.Values{}
	if q.Source != "" {
		params.Set("source", q.Source)
	}
	if q.Level != "" {
		params.Set("level", q.Level)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	var body struct {
		Entries []datatypes.LogEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/logs", params, &body); err != nil {
		return nil, err
	}
	return body.Entries, nil
}

// StreamLogs follows the event log over the websocket endpoint, calling fn
// for every entry until ctx is done, the server closes the stream or fn
// returns an error.
func (c *WardenClient) StreamLogs(ctx context.Context, backlog bool, fn func(datatypes.LogEntry) error) error {
	u, err := url.Parse(c.baseURL + "/v1/logs/ws")
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if !backlog {
		u.RawQuery = "backlog=false"
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect log stream: %w", err)
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = ws.Close()
	})
	defer stop()

	for {
		var e datatypes.LogEntry
		if err := ws.ReadJSON(&e); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read log stream: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

// =============================================================================
// Transport
// =============================================================================

func (c *WardenClient) do(ctx context.Context, method, path string, params url.Values, out any) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil {
			apiErr.Message = payload.Error
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
