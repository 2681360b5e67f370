package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/avsessgw/internal/observability"
)

// defaultKeyPrefix namespaces limiter state in the shared Redis store.
const defaultKeyPrefix = "ratelimit:"

// tokenBucketScript implements a token bucket atomically. Tokens
// trickle in continuously at refill/window rather than all at once at
// window boundaries. Returns: allowed (0 or 1), remaining whole
// tokens, retry time in ms (0 when allowed).
// KEYS[1] = bucket key
// ARGV[1] = capacity
// ARGV[2] = refill per window
// ARGV[3] = window in ms
// ARGV[4] = now in ms
// ARGV[5] = requested tokens
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local capacity = tonumber(ARGV[1])
	local refill = tonumber(ARGV[2])
	local window_ms = tonumber(ARGV[3])
	local now = tonumber(ARGV[4])
	local requested = tonumber(ARGV[5])
	local rate = refill / window_ms

	local data = redis.call('HMGET', key, 'tokens', 'last_update')
	local tokens = tonumber(data[1])
	local last_update = tonumber(data[2])

	if tokens == nil then
		tokens = capacity
		last_update = now
	end

	local elapsed = math.max(0, now - last_update)
	tokens = math.min(capacity, tokens + elapsed * rate)

	local allowed = 0
	if tokens >= requested then
		tokens = tokens - requested
		allowed = 1
	end

	redis.call('HMSET', key, 'tokens', tokens, 'last_update', now)
	redis.call('PEXPIRE', key, math.ceil(capacity / rate) + window_ms)

	local retry_ms = 0
	if allowed == 0 then
		retry_ms = math.ceil((requested - tokens) / rate)
	end

	return {allowed, math.floor(tokens), retry_ms}
`)

// RedisLimiter enforces a shared token bucket per client key across all
// gateway instances. When Redis is unreachable the check degrades to a
// process-local bucket instead of failing the request path.
type RedisLimiter struct {
	client   *redis.Client
	limit    Limit
	prefix   string
	logger   observability.Logger
	fallback *LocalLimiter
	now      func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

// RedisLimiterOption is a functional option for configuring the limiter.
type RedisLimiterOption func(*RedisLimiter)

// WithRedisLogger sets the logger for the limiter.
func WithRedisLogger(logger observability.Logger) RedisLimiterOption {
	return func(l *RedisLimiter) {
		l.logger = logger
	}
}

// WithRedisClock overrides the limiter clock, for tests.
func WithRedisClock(now func() time.Time) RedisLimiterOption {
	return func(l *RedisLimiter) {
		l.now = now
	}
}

// WithKeyPrefix overrides the Redis key prefix.
func WithKeyPrefix(prefix string) RedisLimiterOption {
	return func(l *RedisLimiter) {
		l.prefix = prefix
	}
}

// NewRedisLimiter creates a distributed token bucket limiter with a
// local fallback sized to the same limit.
func NewRedisLimiter(client *redis.Client, limit Limit, opts ...RedisLimiterOption) *RedisLimiter {
	l := &RedisLimiter{
		client: client,
		limit:  limit,
		prefix: defaultKeyPrefix,
		logger: observability.NopLogger(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	l.fallback = NewLocalLimiter(limit, WithLocalLogger(l.logger))

	return l
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	start := l.now()

	raw, err := tokenBucketScript.Run(ctx, l.client,
		[]string{l.prefix + key},
		l.limit.Capacity,
		l.limit.Refill,
		l.limit.Window.Milliseconds(),
		start.UnixMilli(),
		1,
	).Result()

	if err != nil {
		// A store outage must not take down the request path.
		l.logger.Warn("rate limit store unavailable, using local fallback",
			observability.String("key", key),
			observability.Error(err),
		)
		rateLimitFallbackTotal.Inc()
		return l.fallback.Allow(ctx, key)
	}

	result, err := parseScriptResult(raw)
	if err != nil {
		return nil, err
	}

	if result.Allowed {
		rateLimitChecksTotal.WithLabelValues("allowed").Inc()
	} else {
		rateLimitChecksTotal.WithLabelValues("denied").Inc()
	}
	rateLimitCheckDuration.WithLabelValues("redis").Observe(l.now().Sub(start).Seconds())

	return result, nil
}

// Reset implements Limiter.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit for %s: %w", key, err)
	}
	return nil
}

// Close implements Limiter. The Redis client is owned by the caller and
// is not closed here.
func (l *RedisLimiter) Close() error {
	return l.fallback.Close()
}

// parseScriptResult parses the [allowed, remaining, retry_ms] reply.
func parseScriptResult(raw interface{}) (*Result, error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) < 3 {
		return nil, fmt.Errorf("unexpected script result format: %v", raw)
	}

	allowed, ok := values[0].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected allowed value: %v", values[0])
	}

	remaining, ok := values[1].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected remaining value: %v", values[1])
	}

	retryMs, ok := values[2].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected retry value: %v", values[2])
	}

	return &Result{
		Allowed:    allowed == 1,
		Remaining:  int(remaining),
		RetryAfter: time.Duration(retryMs) * time.Millisecond,
	}, nil
}
