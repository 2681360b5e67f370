// Package ratelimit provides per-client token bucket rate limiting with
// shared state in Redis and a process-local fallback for store outages.
package ratelimit

import (
	"context"
	"time"
)

// Limiter defines the interface for rate limiting.
type Limiter interface {
	// Allow checks if a single request is allowed for the given client key.
	Allow(ctx context.Context, key string) (*Result, error)

	// Reset clears the rate limit state for the given client key.
	Reset(ctx context.Context, key string) error

	// Close releases limiter resources.
	Close() error
}

// Limit represents a token bucket configuration: the bucket holds at
// most Capacity tokens and regains Refill tokens per Window, trickling
// in continuously rather than all at once at window boundaries.
type Limit struct {
	Capacity int
	Refill   int
	Window   time.Duration
}

// Rate returns the refill rate in tokens per second.
func (l Limit) Rate() float64 {
	return float64(l.Refill) / l.Window.Seconds()
}

// Result represents the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the request may proceed.
	Allowed bool

	// Remaining is the number of whole tokens left in the bucket.
	Remaining int

	// RetryAfter is the duration to wait before retrying (when denied).
	RetryAfter time.Duration
}
