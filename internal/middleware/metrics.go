package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the filter chain.
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "Total number of HTTP requests handled by the gateway",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	panicsRecoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_panics_recovered_total",
			Help: "Total number of panics recovered in the filter chain",
		},
	)

	authRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_auth_rejections_total",
			Help: "Total number of requests rejected by the authentication filter",
		},
		[]string{"reason"},
	)

	rateLimitRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_ratelimit_rejections_total",
			Help: "Total number of requests rejected by the rate limit filter",
		},
	)
)
