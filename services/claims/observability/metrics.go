// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the claims service.
//
// # Description
//
// Counters and histograms covering claim validations: request totals by
// endpoint and status, decision outcomes by status and applied rule,
// validation latency, and contradiction counts by severity.
//
// # Integration
//
// Metrics are exposed on the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "claimguard"

const decisionSubsystem = "decisions"

// DecisionMetrics holds all Prometheus metrics for claim validation.
//
// Initialize once at startup via InitMetrics().
type DecisionMetrics struct {
	// RequestsTotal counts validation requests by endpoint and status.
	// Labels: endpoint (validate, validate_evidence, ingest), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// DecisionsTotal counts final decisions by status.
	// Labels: status (Covered, Not Covered, Manual Review)
	DecisionsTotal *prometheus.CounterVec

	// ValidationDurationSeconds measures end-to-end validation latency.
	// Labels: endpoint
	ValidationDurationSeconds *prometheus.HistogramVec

	// ContradictionsTotal counts detected contradictions by severity.
	// Labels: severity (Low, Medium, High, Critical)
	ContradictionsTotal *prometheus.CounterVec

	// FallbacksTotal counts validations that fell back to the safe
	// manual-review decision because the model output was unparseable.
	FallbacksTotal prometheus.Counter

	// GuardrailsTotal counts validations short-circuited by the
	// zero-clause retrieval guardrail.
	GuardrailsTotal prometheus.Counter

	// ErrorsTotal counts errors by endpoint and type.
	// Labels: endpoint, error_code (validation, transport, llm_error, internal)
	ErrorsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of DecisionMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *DecisionMetrics

// InitMetrics creates and registers all metrics on the default registry.
// Call once at startup; a second call panics on duplicate registration.
func InitMetrics() *DecisionMetrics {
	DefaultMetrics = &DecisionMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: decisionSubsystem,
				Name:      "requests_total",
				Help:      "Total validation requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		DecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: decisionSubsystem,
				Name:      "decisions_total",
				Help:      "Final claim decisions by status",
			},
			[]string{"status"},
		),

		ValidationDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: decisionSubsystem,
				Name:      "validation_duration_seconds",
				Help:      "End-to-end claim validation latency in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"endpoint"},
		),

		ContradictionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: decisionSubsystem,
				Name:      "contradictions_total",
				Help:      "Detected contradictions by severity",
			},
			[]string{"severity"},
		),

		FallbacksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: decisionSubsystem,
				Name:      "fallbacks_total",
				Help:      "Validations that fell back to manual review on unparseable model output",
			},
		),

		GuardrailsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: decisionSubsystem,
				Name:      "guardrails_total",
				Help:      "Validations short-circuited by the zero-clause guardrail",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: decisionSubsystem,
				Name:      "errors_total",
				Help:      "Total errors by endpoint and type",
			},
			[]string{"endpoint", "error_code"},
		),
	}

	return DefaultMetrics
}

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeTransport indicates an upstream dependency failure.
	ErrorCodeTransport ErrorCode = "transport"

	// ErrorCodeLLMError indicates a model invocation failure.
	ErrorCodeLLMError ErrorCode = "llm_error"

	// ErrorCodeInternal indicates an internal server error.
	ErrorCodeInternal ErrorCode = "internal"
)

// Endpoint represents a claims endpoint for metrics labeling.
type Endpoint string

const (
	EndpointValidate         Endpoint = "validate"
	EndpointValidateEvidence Endpoint = "validate_evidence"
	EndpointIngest           Endpoint = "ingest"
)

// RecordRequest records a completed request.
func (m *DecisionMetrics) RecordRequest(endpoint Endpoint, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
}

// RecordError records a categorized error.
func (m *DecisionMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// RecordDecision records the final decision status.
func (m *DecisionMetrics) RecordDecision(status string) {
	m.DecisionsTotal.WithLabelValues(status).Inc()
}

// RecordDuration records end-to-end validation latency.
func (m *DecisionMetrics) RecordDuration(endpoint Endpoint, seconds float64) {
	m.ValidationDurationSeconds.WithLabelValues(string(endpoint)).Observe(seconds)
}

// RecordContradiction records one detected contradiction.
func (m *DecisionMetrics) RecordContradiction(severity string) {
	m.ContradictionsTotal.WithLabelValues(severity).Inc()
}
