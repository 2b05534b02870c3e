package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Allocation results
const (
	allocationResultSuccess   = "success"
	allocationResultExhausted = "exhausted"
	allocationResultError     = "error"
)

var (
	sequenceAllocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sequence_allocations_total",
			Help: "Number allocations by result",
		},
		[]string{"result"},
	)

	sequenceVersionConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sequence_version_conflicts_total",
			Help: "Conditional counter writes rejected because of a stale version",
		},
	)

	sequenceAllocationAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sequence_allocation_attempts",
			Help:    "Attempts needed per allocation",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 13},
		},
	)

	sequenceCorrectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sequence_corrections_total",
			Help: "Manual counter corrections",
		},
	)

	numberLogAppendFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "number_log_append_failures_total",
			Help: "History entries that could not be written after the counter was updated",
		},
	)

	auditRecordFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_record_failures_total",
			Help: "Audit events that could not be recorded",
		},
	)

	auditPublishFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_publish_failures_total",
			Help: "Audit events the Kafka producer failed to deliver",
		},
	)
)
