// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
}

// =============================================================================
// Source Listing
// =============================================================================

// Status filter values accepted by SourceQuery.
const (
	StatusFilterAll     = "ALL"
	StatusFilterDrift   = "DRIFT"
	StatusFilterHealthy = "HEALTHY"
)

// SourceQuery is the query string of GET /v1/sources.
//
// # Fields
//
//   - Search: Optional. Case-insensitive substring matched against name and id.
//   - Status: Optional. ALL (default), DRIFT or HEALTHY.
//   - Type: Optional. ALL (default) or one of the SourceType values.
//
// # Examples
//
//	GET /v1/sources?search=log_1&status=DRIFT&type=PubSub
type SourceQuery struct {
	Search string `form:"search" json:"search" validate:"max=128"`
	Status string `form:"status" json:"status" validate:"omitempty,oneof=ALL DRIFT HEALTHY"`
	Type   string `form:"type" json:"type" validate:"omitempty,oneof=ALL PubSub GCS CloudSQL"`
}

// Validate checks the query against its validator tags.
func (q *SourceQuery) Validate() error {
	return requestValidate.Struct(q)
}

// Matches reports whether s passes every filter in q.
func (q SourceQuery) Matches(s DataSource) bool {
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(s.Name), needle) &&
			!strings.Contains(strings.ToLower(s.ID), needle) {
			return false
		}
	}
	switch q.Status {
	case StatusFilterDrift:
		if s.Status != StatusDriftDetected {
			return false
		}
	case StatusFilterHealthy:
		if s.Status != StatusHealthy {
			return false
		}
	}
	if q.Type != "" && q.Type != StatusFilterAll && SourceType(q.Type) != s.Type {
		return false
	}
	return true
}

// =============================================================================
// Log Listing
// =============================================================================

// LogQuery is the query string of GET /v1/logs.
//
// # Fields
//
//   - Source, Level: Optional exact filters.
//   - Limit: Optional. Keep only the newest Limit matches; 0 keeps all.
type LogQuery struct {
	Source string `form:"source" json:"source" validate:"omitempty,oneof=Frontend Backend AI System Dataflow Dataform BigQuery"`
	Level  string `form:"level" json:"level" validate:"omitempty,oneof=INFO WARN ERROR SUCCESS"`
	Limit  int    `form:"limit" json:"limit" validate:"min=0,max=10000"`
}

// Validate checks the query against its validator tags.
func (q *LogQuery) Validate() error {
	return requestValidate.Struct(q)
}

// Apply filters entries (oldest first) and trims to the newest Limit.
func (q LogQuery) Apply(entries []LogEntry) []LogEntry {
	out := make([]LogEntry, 0, len(entries))
	for _, e := range entries {
		if q.Source != "" && string(e.Source) != q.Source {
			continue
		}
		if q.Level != "" && string(e.Level) != q.Level {
			continue
		}
		out = append(out, e)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
