// Package metrics defines the Prometheus collectors for the review services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExtractionAPIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_extraction_api_requests_total",
			Help: "Total number of calls made to the policy extraction API",
		},
		[]string{"operation", "outcome"},
	)

	ExtractionAPIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "policy_extraction_api_duration_seconds",
			Help:    "Duration of policy extraction API calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"operation"},
	)

	WorkflowTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_review_transitions_total",
			Help: "Total number of review workflow state transitions",
		},
		[]string{"from", "to"},
	)

	IngestedPolicies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_ingest_files_total",
			Help: "Total number of policy PDFs picked up from S3",
		},
		[]string{"result"},
	)
)

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)
