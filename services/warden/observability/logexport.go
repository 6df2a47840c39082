// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/DriftWarden/pkg/logging"
)

// LogRecordExporter counts service log records by level so error and
// warning rates can be alerted on without scraping log files.
//
// It is created before the service logger, independently of Metrics.
type LogRecordExporter struct {
	// RecordsTotal counts records at or above the logger's level.
	// Labels: level (DEBUG, INFO, WARN, ERROR)
	RecordsTotal *prometheus.CounterVec
}

// NewLogRecordExporter registers the counter on reg.
func NewLogRecordExporter(reg prometheus.Registerer) *LogRecordExporter {
	return &LogRecordExporter{
		RecordsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "service_log",
			Name:      "records_total",
			Help:      "Service log records emitted, by level",
		}, []string{"level"}),
	}
}

// Export increments the counter for entry's level.
func (e *LogRecordExporter) Export(_ context.Context, entry logging.LogEntry) error {
	e.RecordsTotal.WithLabelValues(entry.Level.String()).Inc()
	return nil
}

// Flush is a no-op; the counter is read on scrape.
func (e *LogRecordExporter) Flush(context.Context) error { return nil }

// Close is a no-op.
func (e *LogRecordExporter) Close() error { return nil }

var _ logging.LogExporter = (*LogRecordExporter)(nil)
