// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and tracing for the warden service.
//
// # Description
//
// Metrics cover the drift workflows and their dependencies:
//   - Simulation and resolution outcomes
//   - Resolution phase and AI request latency
//   - Store failures and event log volume
//   - HTTP requests by route and status
//
// Metrics implements the observer interfaces of the store, eventlog,
// analysis, simulator and resolver packages, so one value is injected
// everywhere.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every method is a no-op on a nil *Metrics.
package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "warden"

// Metrics holds every Prometheus collector of the service.
type Metrics struct {
	// SimulationsTotal counts drift simulations.
	// Labels: outcome (drifted, skipped, failed)
	SimulationsTotal *prometheus.CounterVec

	// SimulationDurationSeconds measures simulation wall time.
	SimulationDurationSeconds prometheus.Histogram

	// ResolutionsTotal counts executed patches.
	// Labels: outcome (resolved, failed)
	ResolutionsTotal *prometheus.CounterVec

	// PhaseDurationSeconds measures execution phases.
	// Labels: phase (git, compile, deploy, done)
	PhaseDurationSeconds *prometheus.HistogramVec

	// ActiveSessions is the number of open resolver sessions.
	ActiveSessions prometheus.Gauge

	// AIRequestsTotal counts AI calls.
	// Labels: op (detect, resolve), mode (mock, live), outcome (success, error)
	AIRequestsTotal *prometheus.CounterVec

	// AIRequestDurationSeconds measures AI call latency.
	// Labels: op, mode
	AIRequestDurationSeconds *prometheus.HistogramVec

	// StoreErrorsTotal counts persistence failures.
	// Labels: op (load, decode, encode, save, reset)
	StoreErrorsTotal *prometheus.CounterVec

	// LogEntriesTotal counts event log appends.
	// Labels: level (INFO, WARN, ERROR, SUCCESS)
	LogEntriesTotal *prometheus.CounterVec

	// LogEvictionsTotal counts entries dropped by the bounded event log.
	LogEvictionsTotal prometheus.Counter

	// HTTPRequestsTotal counts API requests.
	// Labels: route, method, status
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDurationSeconds measures API latency.
	// Labels: route, method
	HTTPRequestDurationSeconds *prometheus.HistogramVec
}

// NewMetrics creates and registers every collector on reg.
//
// # Description
//
// Pass prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests so that repeated construction does
// not collide.
//
// # Limitations
//
//   - Panics if the collectors are already registered on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	workflowBuckets := []float64{0.1, 0.5, 1, 2, 3, 5, 10, 30, 60}

	return &Metrics{
		SimulationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "simulator",
			Name:      "simulations_total",
			Help:      "Drift simulations by outcome",
		}, []string{"outcome"}),
		SimulationDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "simulator",
			Name:      "simulation_duration_seconds",
			Help:      "Wall time of one drift simulation",
			Buckets:   workflowBuckets,
		}),
		ResolutionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Executed schema patches by outcome",
		}, []string{"outcome"}),
		PhaseDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "resolver",
			Name:      "phase_duration_seconds",
			Help:      "Duration of each patch execution phase",
			Buckets:   workflowBuckets,
		}, []string{"phase"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "resolver",
			Name:      "active_sessions",
			Help:      "Open resolver sessions",
		}),
		AIRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ai",
			Name:      "requests_total",
			Help:      "AI analysis requests by operation, mode and outcome",
		}, []string{"op", "mode", "outcome"}),
		AIRequestDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "ai",
			Name:      "request_duration_seconds",
			Help:      "AI analysis request latency",
			Buckets:   workflowBuckets,
		}, []string{"op", "mode"}),
		StoreErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Persistent store failures by operation",
		}, []string{"op"}),
		LogEntriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "eventlog",
			Name:      "entries_total",
			Help:      "Event log entries by level",
		}, []string{"level"}),
		LogEvictionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "eventlog",
			Name:      "evictions_total",
			Help:      "Event log entries evicted by the capacity bound",
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by route, method and status",
		}, []string{"route", "method", "status"}),
		HTTPRequestDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// =============================================================================
// Recorders
// =============================================================================

// RecordSimulation implements simulator.Observer.
func (m *Metrics) RecordSimulation(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SimulationsTotal.WithLabelValues(outcome).Inc()
	m.SimulationDurationSeconds.Observe(duration.Seconds())
}

// RecordResolution implements resolver.Observer.
func (m *Metrics) RecordResolution(outcome string) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(outcome).Inc()
}

// RecordPhase implements resolver.Observer.
func (m *Metrics) RecordPhase(phase string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PhaseDurationSeconds.WithLabelValues(phase).Observe(elapsed.Seconds())
}

// SetActiveSessions implements resolver.Observer.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// RecordAIRequest implements analysis.Observer.
func (m *Metrics) RecordAIRequest(op, mode, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.AIRequestsTotal.WithLabelValues(op, mode, outcome).Inc()
	m.AIRequestDurationSeconds.WithLabelValues(op, mode).Observe(duration.Seconds())
}

// RecordStoreError implements store.ErrorRecorder.
func (m *Metrics) RecordStoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrorsTotal.WithLabelValues(op).Inc()
}

// RecordLogEntry implements eventlog.Observer.
func (m *Metrics) RecordLogEntry(level string, evicted bool) {
	if m == nil {
		return
	}
	m.LogEntriesTotal.WithLabelValues(level).Inc()
	if evicted {
		m.LogEvictionsTotal.Inc()
	}
}

// GinMiddleware records request count and latency per matched route.
// Unmatched paths are grouped under "unmatched" to bound cardinality.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDurationSeconds.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}
