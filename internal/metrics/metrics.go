// Package metrics exposes Prometheus instruments for the evaluation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluation_candidates_total",
			Help: "Candidates processed per evaluation run, by outcome",
		},
		[]string{"outcome"}, // scored, cached, failed
	)

	EvaluationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluation_failures_total",
			Help: "Scoring failures by error kind",
		},
		[]string{"error_kind"},
	)

	EvaluationBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evaluation_batch_duration_seconds",
			Help:    "Wall time of one evaluation run",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	ScoringRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "scoring_request_duration_seconds",
			Help: "Latency of calls to the scoring service",
		},
		[]string{"endpoint"},
	)

	CVParseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cv_parse_total",
			Help: "CV documents parsed, by outcome",
		},
		[]string{"outcome"}, // parsed, failed
	)
)
