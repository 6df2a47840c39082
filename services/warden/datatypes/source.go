// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the data structures shared by the warden
// service: monitored sources, their schemas and patch history, drift
// findings, event log entries and the request/response shapes of the API.
package datatypes

import (
	"fmt"
	"slices"
	"time"

	"golang.org/x/mod/semver"
)

// =============================================================================
// Enumerations
// =============================================================================

// SourceType is the kind of upstream system feeding a source.
type SourceType string

const (
	SourceTypePubSub   SourceType = "PubSub"
	SourceTypeGCS      SourceType = "GCS"
	SourceTypeCloudSQL SourceType = "CloudSQL"
)

// SourceTypes lists every SourceType in seed order.
var SourceTypes = []SourceType{SourceTypePubSub, SourceTypeGCS, SourceTypeCloudSQL}

// SourceStatus is the health of a source.
//
// RESOLVING and FAILED are part of the vocabulary but no workflow assigns
// them; a source under resolution stays DRIFT_DETECTED until the patch
// commits.
type SourceStatus string

const (
	StatusHealthy       SourceStatus = "HEALTHY"
	StatusDriftDetected SourceStatus = "DRIFT_DETECTED"
	StatusResolving     SourceStatus = "RESOLVING"
	StatusFailed        SourceStatus = "FAILED"
)

// FieldMode is the cardinality of a schema field.
type FieldMode string

const (
	ModeNullable FieldMode = "NULLABLE"
	ModeRequired FieldMode = "REQUIRED"
	ModeRepeated FieldMode = "REPEATED"
)

// Field types used by the seed data and the simulator.
const (
	FieldTypeString    = "STRING"
	FieldTypeInteger   = "INTEGER"
	FieldTypeBoolean   = "BOOLEAN"
	FieldTypeTimestamp = "TIMESTAMP"
	FieldTypeJSON      = "JSON"
	FieldTypeFloat     = "FLOAT"
)

// =============================================================================
// Schema Types
// =============================================================================

// SchemaField is one column of a source's target table.
type SchemaField struct {
	Name string    `json:"name"`
	Type string    `json:"type"`
	Mode FieldMode `json:"mode"`
}

// SchemaPatch records one applied resolution.
type SchemaPatch struct {
	ID          string        `json:"id"`
	AppliedAt   time.Time     `json:"applied_at"`
	Description string        `json:"description"`
	AddedFields []SchemaField `json:"added_fields"`
}

// DriftDetails is the evidence attached to a drifting source.
//
// SolutionAnalysis and SolutionCode are filled once a resolution proposal
// has been generated. MissingFields is reserved and always empty.
type DriftDetails struct {
	DetectedAt       time.Time     `json:"detected_at"`
	UnexpectedFields []SchemaField `json:"unexpected_fields"`
	MissingFields    []SchemaField `json:"missing_fields"`
	SamplePayload    string        `json:"sample_payload"`
	DetectionReport  string        `json:"detection_report"`
	SolutionAnalysis string        `json:"solution_analysis,omitempty"`
	SolutionCode     string        `json:"solution_code,omitempty"`
}

// HasProposal reports whether a resolution proposal has been persisted.
func (d *DriftDetails) HasProposal() bool {
	return d != nil && (d.SolutionAnalysis != "" || d.SolutionCode != "")
}

// =============================================================================
// DataSource
// =============================================================================

// DataSource is a monitored ingestion stream.
//
// # Invariants
//
//   - ID is never reused or changed.
//   - Status == DRIFT_DETECTED exactly when DriftDetails is non-nil.
//   - Schema field names are unique and fields are never removed.
//   - History is newest first.
type DataSource struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Type         SourceType    `json:"type"`
	LastUpdated  time.Time     `json:"last_updated"`
	Status       SourceStatus  `json:"status"`
	Schema       []SchemaField `json:"schema"`
	History      []SchemaPatch `json:"history"`
	DriftDetails *DriftDetails `json:"drift_details,omitempty"`
}

// Clone returns a deep copy of s.
func (s DataSource) Clone() DataSource {
	out := s
	out.Schema = slices.Clone(s.Schema)
	if s.History != nil {
		out.History = make([]SchemaPatch, len(s.History))
		for i, p := range s.History {
			p.AddedFields = slices.Clone(p.AddedFields)
			out.History[i] = p
		}
	}
	if s.DriftDetails != nil {
		d := *s.DriftDetails
		d.UnexpectedFields = slices.Clone(d.UnexpectedFields)
		d.MissingFields = slices.Clone(d.MissingFields)
		out.DriftDetails = &d
	}
	return out
}

// CloneSources deep-copies a collection.
func CloneSources(sources []DataSource) []DataSource {
	if sources == nil {
		return nil
	}
	out := make([]DataSource, len(sources))
	for i, s := range sources {
		out[i] = s.Clone()
	}
	return out
}

// HasField reports whether the schema already contains a field named name.
func (s DataSource) HasField(name string) bool {
	return slices.ContainsFunc(s.Schema, func(f SchemaField) bool { return f.Name == name })
}

// SchemaVersion returns the derived schema version as a semver string.
// A source with no patches is v1.0.0; each patch bumps the major version.
func (s DataSource) SchemaVersion() string {
	return fmt.Sprintf("v%d.0.0", len(s.History)+1)
}

// DisplayVersion is SchemaVersion trimmed to major.minor, e.g. "v2.0".
func (s DataSource) DisplayVersion() string {
	return semver.MajorMinor(s.SchemaVersion())
}

// PatchCount returns the number of applied patches.
func (s DataSource) PatchCount() int {
	return len(s.History)
}

// CheckInvariants returns the first broken structural rule of s, or nil.
func (s DataSource) CheckInvariants() error {
	if s.ID == "" {
		return fmt.Errorf("source has empty id")
	}
	switch s.Status {
	case StatusDriftDetected:
		if s.DriftDetails == nil {
			return fmt.Errorf("source %s: status %s without drift details", s.ID, s.Status)
		}
	case StatusHealthy:
		if s.DriftDetails != nil {
			return fmt.Errorf("source %s: drift details on %s source", s.ID, s.Status)
		}
	default:
		return fmt.Errorf("source %s: unexpected status %q", s.ID, s.Status)
	}
	seen := make(map[string]struct{}, len(s.Schema))
	for _, f := range s.Schema {
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("source %s: duplicate schema field %q", s.ID, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	if !semver.IsValid(s.SchemaVersion()) {
		return fmt.Errorf("source %s: invalid schema version %q", s.ID, s.SchemaVersion())
	}
	for i := 1; i < len(s.History); i++ {
		if s.History[i].AppliedAt.After(s.History[i-1].AppliedAt) {
			return fmt.Errorf("source %s: history not newest first", s.ID)
		}
	}
	return nil
}

// CheckCollection runs CheckInvariants on every source and also rejects
// duplicate ids.
func CheckCollection(sources []DataSource) error {
	ids := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		if err := s.CheckInvariants(); err != nil {
			return err
		}
		if _, dup := ids[s.ID]; dup {
			return fmt.Errorf("duplicate source id %q", s.ID)
		}
		ids[s.ID] = struct{}{}
	}
	return nil
}

// =============================================================================
// Stats
// =============================================================================

// SourceStats are the dashboard KPIs.
type SourceStats struct {
	Total        int `json:"total"`
	Drifting     int `json:"drifting"`
	Healthy      int `json:"healthy"`
	TotalPatches int `json:"total_patches"`
}

// ComputeStats aggregates KPIs over sources.
func ComputeStats(sources []DataSource) SourceStats {
	stats := SourceStats{Total: len(sources)}
	for _, s := range sources {
		switch s.Status {
		case StatusDriftDetected:
			stats.Drifting++
		case StatusHealthy:
			stats.Healthy++
		}
		stats.TotalPatches += len(s.History)
	}
	return stats
}
