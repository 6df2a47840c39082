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

import "time"

// LogSource tags the pseudo-subsystem an event log entry came from.
type LogSource string

const (
	LogSourceFrontend LogSource = "Frontend"
	LogSourceBackend  LogSource = "Backend"
	LogSourceAI       LogSource = "AI"
	LogSourceSystem   LogSource = "System"
	LogSourceDataflow LogSource = "Dataflow"
	LogSourceDataform LogSource = "Dataform"
	LogSourceBigQuery LogSource = "BigQuery"
)

// LogLevel is the severity of an event log entry.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarn    LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelSuccess LogLevel = "SUCCESS"
)

// LogEntry is one line of the operator-facing event log.
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    LogSource `json:"source"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
}
