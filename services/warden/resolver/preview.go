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
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
	"github.com/AleutianAI/DriftWarden/services/warden/markdown"
)

// Preview is everything the review step shows before a patch is applied.
type Preview struct {
	SourceID            string                  `json:"source_id"`
	Analysis            string                  `json:"analysis"`
	AnalysisHTML        string                  `json:"analysis_html"`
	Code                string                  `json:"code"`
	HasCode             bool                    `json:"has_code"`
	DetectionReportHTML string                  `json:"detection_report_html"`
	AddedFields         []datatypes.SchemaField `json:"added_fields"`
	SchemaDiff          string                  `json:"schema_diff"`
	CurrentVersion      string                  `json:"current_version"`
	NextVersion         string                  `json:"next_version"`
}

// Preview renders the saved proposal of an open session.
func (m *Manager) Preview(id string) (Preview, error) {
	if _, err := m.Get(id); err != nil {
		return Preview{}, err
	}
	src, ok := m.registry.Get(id)
	if !ok || src.DriftDetails == nil || !src.DriftDetails.HasProposal() {
		return Preview{}, fmt.Errorf("%w: %s has no proposal", ErrInvalidState, id)
	}
	return BuildPreview(src)
}

// BuildPreview renders the proposal saved on a drifting source.
func BuildPreview(src datatypes.DataSource) (Preview, error) {
	if src.DriftDetails == nil {
		return Preview{}, fmt.Errorf("%w: %s is not drifting", ErrInvalidState, src.ID)
	}

	after := src.Clone()
	if err := ApplyResolution(&after, "preview", src.LastUpdated); err != nil {
		return Preview{}, err
	}
	schemaDiff, err := SchemaDiff(src.ID, src.Schema, after.Schema)
	if err != nil {
		return Preview{}, fmt.Errorf("schema diff for %s: %w", src.ID, err)
	}

	d := src.DriftDetails
	return Preview{
		SourceID:            src.ID,
		Analysis:            d.SolutionAnalysis,
		AnalysisHTML:        markdown.ToHTML(d.SolutionAnalysis),
		Code:                d.SolutionCode,
		HasCode:             d.SolutionCode != "" && d.SolutionCode != markdown.NoCodePlaceholder,
		DetectionReportHTML: markdown.ToHTML(d.DetectionReport),
		AddedFields:         after.History[0].AddedFields,
		SchemaDiff:          schemaDiff,
		CurrentVersion:      src.DisplayVersion(),
		NextVersion:         after.DisplayVersion(),
	}, nil
}

// SchemaDiff renders before and after as a unified diff, one column per
// line ("name TYPE MODE"). Columns are only ever appended, so the result
// is a single hunk of context followed by additions.
func SchemaDiff(sourceID string, before, after []datatypes.SchemaField) (string, error) {
	if len(after) < len(before) {
		return "", fmt.Errorf("schema shrank from %d to %d fields", len(before), len(after))
	}
	if len(after) == len(before) {
		return "", nil
	}

	var body strings.Builder
	for i, f := range after {
		prefix := " "
		if i >= len(before) {
			prefix = "+"
		}
		body.WriteString(prefix + columnLine(f) + "\n")
	}

	origStart := int32(1)
	if len(before) == 0 {
		origStart = 0
	}
	fd := &diff.FileDiff{
		OrigName: "a/" + sourceID + ".schema",
		NewName:  "b/" + sourceID + ".schema",
		Hunks: []*diff.Hunk{{
			OrigStartLine: origStart,
			OrigLines:     int32(len(before)),
			NewStartLine:  1,
			NewLines:      int32(len(after)),
			Body:          []byte(body.String()),
		}},
	}
	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func columnLine(f datatypes.SchemaField) string {
	return fmt.Sprintf("%s %s %s", f.Name, f.Type, f.Mode)
}
