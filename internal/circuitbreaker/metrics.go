package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for circuit breaker activity.
var (
	breakerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitbreaker_requests_total",
			Help: "Total number of requests routed through a circuit breaker",
		},
		[]string{"route", "state"},
	)

	breakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitbreaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"route", "from", "to"},
	)
)
