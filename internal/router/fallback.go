package router

import (
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/avsessgw/internal/observability"
	"github.com/vyrodovalexey/avsessgw/internal/util"
)

// fallbackBody names the failing route so operators and callers can
// tell which backend is degraded; the status is uniform across routes.
func fallbackBody(route string) string {
	return fmt.Sprintf("Service Unavailable, please try again later (route: %s)", route)
}

var fallbackServedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fallback_responses_total",
		Help: "Total number of fallback responses served",
	},
	[]string{"route"},
)

// NewFallbackHandler returns the shared degraded-mode handler. The
// failing route's name is taken from the request context so one handler
// serves every route with a route-specific body.
func NewFallbackHandler(logger observability.Logger) http.Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := util.RouteFromContext(r.Context())
		if route == "" {
			route = "unknown"
		}

		fallbackServedTotal.WithLabelValues(route).Inc()

		logger.Warn("serving fallback response",
			observability.String("route", route),
			observability.String("path", r.URL.Path),
			observability.String("method", r.Method),
			observability.Duration("elapsed", util.ElapsedTime(r.Context())),
		)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, fallbackBody(route))
	})
}
