// Package metrics declares the Prometheus collectors shared by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "debatebot"

var (
	// AdmissionDecisions counts admission controller outcomes.
	// Labels: decision (allowed, denied)
	AdmissionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "admission",
		Name:      "decisions_total",
		Help:      "Admission controller decisions",
	}, []string{"decision"})

	// ExternalCalls counts raw upstream calls made by the backoff caller.
	// Labels: op (generate, consistency, topic, language), result (success, failure)
	ExternalCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "external",
		Name:      "calls_total",
		Help:      "Upstream calls issued, including retries",
	}, []string{"op", "result"})

	// ExternalFailures counts failed upstream calls by error class.
	// Labels: op, class (auth, transient, unknown)
	ExternalFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "external",
		Name:      "failures_total",
		Help:      "Failed upstream calls by error class",
	}, []string{"op", "class"})

	// ExternalRetries counts retries scheduled after a failed call.
	// Labels: op, class
	ExternalRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "external",
		Name:      "retries_total",
		Help:      "Retries scheduled after a failed upstream call",
	}, []string{"op", "class"})

	// ExternalLatency measures the full backoff-wrapped invocation.
	// Labels: op
	ExternalLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "external",
		Name:      "invoke_duration_seconds",
		Help:      "Duration of backoff-wrapped upstream invocations",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"op"})

	// PipelineOutcomes counts terminal pipeline results.
	// Labels: outcome (accepted, fallback), reason (none, validation_exhausted, generation_failed, auth_failed)
	PipelineOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "outcomes_total",
		Help:      "Terminal generation pipeline outcomes",
	}, []string{"outcome", "reason"})

	// PipelineAttempts tracks how many generation attempts a reply needed.
	PipelineAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "attempts",
		Help:      "Generation attempts per pipeline run",
		Buckets:   []float64{1, 2, 3, 4, 5},
	})

	// ValidationFailures counts rejected candidates by check.
	// Labels: check (length, capitulation, hedging, engagement, consistency, empty)
	ValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "validation_failures_total",
		Help:      "Rejected candidates by failing check",
	}, []string{"check"})

	// TurnsRecorded counts persisted turns.
	// Labels: result (ok, conflict_retry, error)
	TurnsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "turns_total",
		Help:      "Turn persistence results",
	}, []string{"result"})

	// AdmissionKeys is the number of client keys tracked after the last sweep.
	AdmissionKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "admission",
		Name:      "tracked_keys",
		Help:      "Client keys tracked by the admission limiter",
	})

	// LanguageDetections counts detections by language and source.
	// Labels: language, source (heuristic, classifier)
	LanguageDetections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "language",
		Name:      "detections_total",
		Help:      "Language detections by result and source",
	}, []string{"language", "source"})
)
