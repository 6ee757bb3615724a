package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrorsTotal tracks faults reaching the engine by classification
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rescue_errors_total",
			Help: "Total number of faults handled by the recovery engine",
		},
		[]string{"category", "severity"},
	)

	// AttemptsTotal tracks strategy executions
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rescue_attempts_total",
			Help: "Total number of recovery attempts",
		},
		[]string{"strategy", "outcome"},
	)

	// AttemptDuration tracks how long each strategy ran
	AttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rescue_attempt_duration_seconds",
			Help:    "Recovery attempt duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	// ResultsTotal tracks terminal outcomes (recovered, fallback, cancelled)
	ResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rescue_results_total",
			Help: "Total number of recovery results returned to callers",
		},
		[]string{"outcome"},
	)

	// DedupJoinedTotal counts callers that received a shared recovery result
	DedupJoinedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rescue_dedup_joined_total",
			Help: "Callers whose recovery result was shared with concurrent callers",
		},
	)

	// InFlight tracks orchestrations currently running
	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rescue_inflight_recoveries",
			Help: "Recovery orchestrations currently running",
		},
	)

	// LedgerRecords tracks records held in memory
	LedgerRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rescue_ledger_records",
			Help: "Error records currently held in the ledger",
		},
	)

	// SweptTotal counts records removed by retention sweeps
	SweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rescue_ledger_swept_total",
			Help: "Error records removed by the retention sweep",
		},
	)

	// EmitErrorsTotal counts events a sink failed to accept
	EmitErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rescue_emit_errors_total",
			Help: "Events that failed to reach a sink",
		},
		[]string{"sink"},
	)
)
