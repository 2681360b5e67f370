package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for rate limit checks.
var (
	rateLimitChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_checks_total",
			Help: "Total number of rate limit checks",
		},
		[]string{"result"},
	)

	rateLimitFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratelimit_fallback_total",
			Help: "Total number of checks served by the local fallback limiter",
		},
	)

	rateLimitCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratelimit_check_duration_seconds",
			Help:    "Duration of rate limit checks in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"backend"},
	)
)
