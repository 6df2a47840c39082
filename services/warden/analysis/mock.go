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
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/DriftWarden/services/warden/clock"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
)

// Default latencies of the mock backend.
const (
	DefaultMockDetectDelay  = 1500 * time.Millisecond
	DefaultMockResolveDelay = 2500 * time.Millisecond
)

// MockDetectionReport is the canned Detect answer.
const MockDetectionReport = `**Warden Detection Report:**
- **Status:** Drift Detected
- **Confidence:** High (98%)
- **Assessment:** The payload contains valid field naming conventions consistent with previous schema versions. This appears to be a legitimate schema evolution (Feature Flag data) rather than data corruption.
- **Recommendation:** Flag for review and auto-generate schema patch.`

// MockClient answers from templates after a fixed delay.
type MockClient struct {
	Clock        clock.Clock
	DetectDelay  time.Duration
	ResolveDelay time.Duration
	Observer     Observer
}

// NewMockClient returns a MockClient with the default delays.
func NewMockClient(clk clock.Clock, observer Observer) *MockClient {
	if clk == nil {
		clk = clock.Real{}
	}
	return &MockClient{
		Clock:        clk,
		DetectDelay:  DefaultMockDetectDelay,
		ResolveDelay: DefaultMockResolveDelay,
		Observer:     observer,
	}
}

// Mode implements Client.
func (m *MockClient) Mode() string { return ModeMock }

// Detect implements Client.
func (m *MockClient) Detect(ctx context.Context, _ []datatypes.SchemaField, _ string) (report string, err error) {
	defer func(start time.Time) { observe(m.Observer, "detect", ModeMock, start, err) }(time.Now())

	if err := m.Clock.Sleep(ctx, m.DetectDelay); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return MockDetectionReport, nil
}

// ProposeResolution implements Client.
func (m *MockClient) ProposeResolution(ctx context.Context, source datatypes.DataSource) (text string, err error) {
	defer func(start time.Time) { observe(m.Observer, "resolve", ModeMock, start, err) }(time.Now())

	if err := m.Clock.Sleep(ctx, m.ResolveDelay); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return MockSolution(source), nil
}

// MockSolution renders the canned resolution for source: an analysis
// section followed by a sqlx block that adds every unexpected field.
func MockSolution(source datatypes.DataSource) string {
	var added []string
	if source.DriftDetails != nil {
		for _, f := range source.DriftDetails.UnexpectedFields {
			added = append(added, fmt.Sprintf("  %s %s options(description=\"Automatically detected new field\")",
				f.Name, strings.ToUpper(f.Type)))
		}
	}
	newFields := ""
	if len(added) > 0 {
		newFields = "  -- NEWLY ADDED FIELDS (AI)\n" + strings.Join(added, ",\n") + ",\n"
	}

	return fmt.Sprintf(`
### Drift Analysis
The upstream payload contains new fields that are not present in the BigQuery staging table. Based on the field names, this appears to be a legitimate feature expansion rather than data corruption.

**Recommendation:**
To resolve this without breaking downstream dependencies, I recommend evolving the schema in Dataform.

`+"```sqlx"+`
-- %s.sqlx
config {
  type: "incremental",
  schema: "production",
  tags: ["daily", "critical"],
  description: "Automatically patched by Drift Warden"
}

SELECT
  event_timestamp,
  user_id,
  device_type,
  -- Existing schema preserved
  existing_field_1,
  existing_field_2,
%s  payload_raw
FROM
  ${ref("events_raw")}
WHERE
  event_timestamp > (SELECT MAX(event_timestamp) FROM ${self()})
`+"```"+`
`, source.ID, newFields)
}

var _ Client = (*MockClient)(nil)
