package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avsessgw/internal/observability"
)

// Defaults for pruning idle per-key buckets.
const (
	defaultCleanupInterval = 5 * time.Minute
	defaultBucketTTL       = 10 * time.Minute
)

// LocalLimiter is an in-process token bucket per client key with the
// same continuous refill as the distributed limiter. It backs
// RedisLimiter during store outages and can serve as the sole limiter
// in single-instance deployments. A background goroutine prunes idle
// buckets; call Close to stop it.
type LocalLimiter struct {
	limit  Limit
	logger observability.Logger

	buckets sync.Map

	cleanupInterval time.Duration
	bucketTTL       time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

var _ Limiter = (*LocalLimiter)(nil)

// localBucket pairs a limiter with its last use time for pruning.
type localBucket struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiterOption is a functional option for configuring the limiter.
type LocalLimiterOption func(*LocalLimiter)

// WithLocalLogger sets the logger for the limiter.
func WithLocalLogger(logger observability.Logger) LocalLimiterOption {
	return func(l *LocalLimiter) {
		l.logger = logger
	}
}

// WithCleanup overrides the idle bucket pruning cadence, for tests.
func WithCleanup(interval, ttl time.Duration) LocalLimiterOption {
	return func(l *LocalLimiter) {
		l.cleanupInterval = interval
		l.bucketTTL = ttl
	}
}

// NewLocalLimiter creates an in-process limiter and starts its cleanup
// goroutine.
func NewLocalLimiter(limit Limit, opts ...LocalLimiterOption) *LocalLimiter {
	l := &LocalLimiter{
		limit:           limit,
		logger:          observability.NopLogger(),
		cleanupInterval: defaultCleanupInterval,
		bucketTTL:       defaultBucketTTL,
		stopCleanup:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	go l.cleanupLoop()

	return l
}

// Allow implements Limiter.
func (l *LocalLimiter) Allow(_ context.Context, key string) (*Result, error) {
	b := l.bucket(key)

	b.mu.Lock()
	b.lastSeen = time.Now()
	allowed := b.limiter.Allow()
	remaining := int(b.limiter.Tokens())
	b.mu.Unlock()

	result := &Result{
		Allowed:   allowed,
		Remaining: remaining,
	}
	if !allowed {
		result.Remaining = 0
		result.RetryAfter = l.limit.Window
		rateLimitChecksTotal.WithLabelValues("denied").Inc()
	} else {
		rateLimitChecksTotal.WithLabelValues("allowed").Inc()
	}

	return result, nil
}

// Reset implements Limiter.
func (l *LocalLimiter) Reset(_ context.Context, key string) error {
	l.buckets.Delete(key)
	return nil
}

// Close implements Limiter. Safe to call multiple times.
func (l *LocalLimiter) Close() error {
	l.cleanupOnce.Do(func() {
		close(l.stopCleanup)
	})
	return nil
}

// bucket returns the bucket for key, creating it full on first use.
func (l *LocalLimiter) bucket(key string) *localBucket {
	if v, ok := l.buckets.Load(key); ok {
		return v.(*localBucket)
	}

	b := &localBucket{
		limiter:  rate.NewLimiter(rate.Limit(l.limit.Rate()), l.limit.Capacity),
		lastSeen: time.Now(),
	}
	actual, _ := l.buckets.LoadOrStore(key, b)
	return actual.(*localBucket)
}

// cleanupLoop prunes buckets idle longer than bucketTTL.
func (l *LocalLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

func (l *LocalLimiter) cleanup() {
	cutoff := time.Now().Add(-l.bucketTTL)
	removed := 0

	l.buckets.Range(func(key, value interface{}) bool {
		b := value.(*localBucket)
		b.mu.Lock()
		idle := b.lastSeen.Before(cutoff)
		b.mu.Unlock()
		if idle {
			l.buckets.Delete(key)
			removed++
		}
		return true
	})

	if removed > 0 {
		l.logger.Debug("pruned idle rate limit buckets",
			observability.Int("count", removed),
		)
	}
}
