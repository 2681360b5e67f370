package middleware

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/vyrodovalexey/avsessgw/internal/observability"
	"github.com/vyrodovalexey/avsessgw/internal/ratelimit"
	"github.com/vyrodovalexey/avsessgw/internal/util"
)

// rateLimitBody is the stable rejection body throttled clients receive.
const rateLimitBody = `{"error":"Rate limit exceeded","message":"Too many requests. Please try again later."}`

// RateLimit returns a middleware that admits or rejects requests by
// client key. retryAfter is the advertised wait, matching the refill
// window. A limiter error fails open: admission control protects the
// backends and is not worth an outage of its own.
func RateLimit(limiter ratelimit.Limiter, resolver *ClientKeyResolver, retryAfter time.Duration, logger observability.Logger) Middleware {
	retryAfterSeconds := strconv.Itoa(int(retryAfter.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := resolver.Resolve(r)

			ctx := util.ContextWithClientKey(r.Context(), key)
			r = r.WithContext(ctx)

			result, err := limiter.Allow(ctx, key)
			if err != nil {
				logger.Error("rate limit check failed",
					observability.String("client_key", key),
					observability.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				rateLimitRejectionsTotal.Inc()

				logger.Warn("rate limit exceeded",
					observability.String("client_key", key),
					observability.String("path", r.URL.Path),
				)

				w.Header().Set(HeaderRateLimitRetryAfter, retryAfterSeconds)
				w.Header().Set(HeaderContentType, ContentTypeJSON)
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = io.WriteString(w, rateLimitBody)
				return
			}

			logger.Debug("rate limit check passed",
				observability.String("client_key", key),
				observability.Int("remaining", result.Remaining),
			)

			next.ServeHTTP(w, r)
		})
	}
}
