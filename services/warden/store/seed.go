// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
)

// SeedEpoch anchors every timestamp in the demo dataset so that two seeds
// are identical.
var SeedEpoch = time.Date(2024, 5, 21, 10, 0, 0, 0, time.UTC)

// SeedSize is the number of sources in the demo dataset.
const SeedSize = 35

// seedDrifting holds the 1-based indices of sources seeded as drifting.
var seedDrifting = map[int]bool{3: true, 15: true, 28: true}

const seedSamplePayload = `{"event_id": "evt_123", "timestamp": "2024-05-21T10:00:00Z", "device_version_major": 14, "marketing_consent": true}`

const seedDetectionReport = `**Warden Detection Report:**
- **Status:** Drift Detected
- **Confidence:** High (96%)
- **Assessment:** The payload introduces new fields 'device_version_major' and 'marketing_consent'. Contextual analysis suggests this matches the recent 'Mobile V2' deployment patterns. Data types are compatible with BigQuery evolution.
- **Recommendation:** Automatically evolve schema and patch Dataform definitions.`

// BaseSchema returns the three fields every seeded source starts with.
func BaseSchema() []datatypes.SchemaField {
	return []datatypes.SchemaField{
		{Name: "event_id", Type: datatypes.FieldTypeString, Mode: datatypes.ModeRequired},
		{Name: "timestamp", Type: datatypes.FieldTypeTimestamp, Mode: datatypes.ModeRequired},
		{Name: "user_data", Type: datatypes.FieldTypeJSON, Mode: datatypes.ModeNullable},
	}
}

// Seed builds the fixed demo dataset.
//
// # Description
//
// Produces SeedSize sources with ids src-1..src-35. The type cycles
// PubSub, GCS, CloudSQL. Sources 3, 15 and 28 start DRIFT_DETECTED with two
// unexpected fields and a canned detection report; the rest are HEALTHY.
// Output is deterministic: every call returns equal values.
func Seed() []datatypes.DataSource {
	sources := make([]datatypes.DataSource, 0, SeedSize)
	for n := 1; n <= SeedSize; n++ {
		typ := datatypes.SourceTypes[(n-1)%len(datatypes.SourceTypes)]
		src := datatypes.DataSource{
			ID:          fmt.Sprintf("src-%d", n),
			Name:        fmt.Sprintf("service_log_%d_%s", n, strings.ToLower(string(typ))),
			Type:        typ,
			LastUpdated: SeedEpoch.Add(-time.Duration(n) * 7 * time.Minute),
			Status:      datatypes.StatusHealthy,
			Schema:      BaseSchema(),
			History:     []datatypes.SchemaPatch{},
		}
		if seedDrifting[n] {
			src.Status = datatypes.StatusDriftDetected
			src.DriftDetails = &datatypes.DriftDetails{
				DetectedAt: SeedEpoch.Add(-time.Duration(n) * time.Minute),
				UnexpectedFields: []datatypes.SchemaField{
					{Name: "device_version_major", Type: datatypes.FieldTypeInteger, Mode: datatypes.ModeNullable},
					{Name: "marketing_consent", Type: datatypes.FieldTypeBoolean, Mode: datatypes.ModeNullable},
				},
				MissingFields:   []datatypes.SchemaField{},
				SamplePayload:   seedSamplePayload,
				DetectionReport: seedDetectionReport,
			}
		}
		sources = append(sources, src)
	}
	return sources
}
