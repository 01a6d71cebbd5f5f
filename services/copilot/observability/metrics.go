// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the copilot.
//
// # Description
//
// Metrics cover the request surface and the tool layer:
//   - Request counters (by profile and status)
//   - Conversation iteration histograms
//   - Token usage counters (input/output)
//   - Per-tool execution counters and latency histograms
//   - In-flight request gauge
//
// Exposed on /metrics. All operations are thread-safe via Prometheus's
// internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "copilot"

// Metrics holds every Prometheus metric the service emits. Initialize
// once at startup via InitMetrics().
type Metrics struct {
	// RequestsTotal counts copilot requests.
	// Labels: profile (admin, tech, restricted), status (ok, degraded, error)
	RequestsTotal *prometheus.CounterVec

	// IterationsPerRequest measures model round trips per conversation.
	IterationsPerRequest prometheus.Histogram

	// TokensTotal counts model tokens by direction.
	// Labels: direction (input, output)
	TokensTotal *prometheus.CounterVec

	// ToolExecutionsTotal counts tool runs.
	// Labels: tool, outcome (ok, error)
	ToolExecutionsTotal *prometheus.CounterVec

	// ToolDurationSeconds measures tool execution latency.
	// Labels: tool
	ToolDurationSeconds *prometheus.HistogramVec

	// ActiveRequests tracks in-flight copilot requests.
	ActiveRequests prometheus.Gauge
}

// DefaultMetrics is the singleton instance. Initialized by InitMetrics().
var DefaultMetrics *Metrics

// InitMetrics creates and registers all metrics against the default
// registry. Call once at startup; a second call panics on duplicate
// registration.
func InitMetrics() *Metrics {
	DefaultMetrics = &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Total copilot requests by profile and status",
			},
			[]string{"profile", "status"},
		),

		IterationsPerRequest: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "iterations_per_request",
				Help:      "Model round trips per conversation",
				Buckets:   []float64{1, 2, 3, 4},
			},
		),

		TokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tokens_total",
				Help:      "Total model tokens by direction",
			},
			[]string{"direction"},
		),

		ToolExecutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tool_executions_total",
				Help:      "Total tool executions by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),

		ToolDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "tool_duration_seconds",
				Help:      "Tool execution latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"tool"},
		),

		ActiveRequests: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "active_requests",
				Help:      "Copilot requests currently in flight",
			},
		),
	}

	return DefaultMetrics
}

// ObserveTool records one tool execution.
func (m *Metrics) ObserveTool(tool, outcome string, elapsed time.Duration) {
	m.ToolExecutionsTotal.WithLabelValues(tool, outcome).Inc()
	m.ToolDurationSeconds.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// ObserveRequest records one finished copilot request.
func (m *Metrics) ObserveRequest(profile, status string, iterations int) {
	m.RequestsTotal.WithLabelValues(profile, status).Inc()
	m.IterationsPerRequest.Observe(float64(iterations))
}

// ObserveTokens records model token usage.
func (m *Metrics) ObserveTokens(input, output int) {
	if input > 0 {
		m.TokensTotal.WithLabelValues("input").Add(float64(input))
	}
	if output > 0 {
		m.TokensTotal.WithLabelValues("output").Add(float64(output))
	}
}
