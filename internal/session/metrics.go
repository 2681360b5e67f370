package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for session store operations.
var (
	sessionOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_store_operations_total",
			Help: "Total number of session store operations",
		},
		[]string{"operation", "status"},
	)

	sessionRenewalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_renewals_total",
			Help: "Total number of sliding-window session renewals",
		},
	)

	sessionOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "session_store_operation_duration_seconds",
			Help:    "Duration of session store operations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)
)
