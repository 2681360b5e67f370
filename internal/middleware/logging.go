package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vyrodovalexey/avsessgw/internal/observability"
	"github.com/vyrodovalexey/avsessgw/internal/util"
)

// RequestLogging returns a middleware that logs every request once at
// entry and once at completion. A panic further down the chain is
// logged here with full request context and re-raised, so every failure
// is observable exactly once before the recovery filter answers the
// client.
func RequestLogging(logger observability.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := util.ContextWithStartTime(r.Context(), start)
			r = r.WithContext(ctx)

			requestID := observability.RequestIDFromContext(ctx)

			logger.Info("incoming request",
				observability.String("method", r.Method),
				observability.String("path", r.URL.Path),
				observability.String("remote_addr", r.RemoteAddr),
				observability.String("user_agent", r.UserAgent()),
				observability.String("request_id", requestID),
			)

			rw := util.NewStatusCapturingResponseWriter(w)

			defer func() {
				duration := time.Since(start)

				if rec := recover(); rec != nil {
					logger.Error("request failed",
						observability.String("method", r.Method),
						observability.String("path", r.URL.Path),
						observability.Duration("duration", duration),
						observability.String("request_id", requestID),
						observability.Any("panic", rec),
					)
					panic(rec)
				}

				httpRequestsTotal.WithLabelValues(
					r.Method, strconv.Itoa(rw.StatusCode),
				).Inc()
				httpRequestDuration.WithLabelValues(r.Method).Observe(duration.Seconds())

				logger.Info("completed request",
					observability.String("method", r.Method),
					observability.String("path", r.URL.Path),
					observability.Int("status", rw.StatusCode),
					observability.Int("size", rw.Size),
					observability.Duration("duration", duration),
					observability.String("request_id", requestID),
				)
			}()

			next.ServeHTTP(rw, r)
		})
	}
}
