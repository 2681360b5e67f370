// Package circuitbreaker wraps gobreaker with per-route breakers,
// state-change logging, metrics and trace events.
package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avsessgw/internal/observability"
)

// cbTracer is the OTEL tracer used for circuit breaker operations.
var cbTracer = otel.Tracer("avsessgw/circuitbreaker")

// Breaker protects a single route's backend. Requests flow through
// Execute; consecutive failures trip the breaker and subsequent calls
// fail fast until the timeout elapses and a half-open probe succeeds.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger observability.Logger
}

// BreakerOption is a functional option for configuring the breaker.
type BreakerOption func(*Breaker)

// WithBreakerLogger sets the logger for the breaker.
func WithBreakerLogger(logger observability.Logger) BreakerOption {
	return func(b *Breaker) {
		b.logger = logger
	}
}

// NewBreaker creates a breaker for the named route. The breaker trips
// when at least threshold requests have been observed in the sampling
// interval and half or more of them failed.
func NewBreaker(name string, threshold int, timeout time.Duration, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(b)
	}

	thresholdU32 := safeIntToUint32(threshold)

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    timeout,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= thresholdU32 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.logger.Info("circuit breaker state change",
				observability.String("route", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)

			breakerTransitionsTotal.WithLabelValues(
				name, from.String(), to.String(),
			).Inc()

			// Record an OTEL span event so transitions show up in traces.
			_, span := cbTracer.Start(context.Background(),
				"circuitbreaker.state_change",
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			span.AddEvent("state_change", trace.WithAttributes(
				attribute.String("circuitbreaker.route", name),
				attribute.String("circuitbreaker.from", from.String()),
				attribute.String("circuitbreaker.to", to.String()),
			))
			span.End()
		},
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}

// Execute runs fn under breaker protection. The state check and the
// outcome accounting are atomic with respect to concurrent callers.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	breakerRequestsTotal.WithLabelValues(b.cb.Name(), b.cb.State().String()).Inc()
	return result, err
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Name returns the route name the breaker protects.
func (b *Breaker) Name() string {
	return b.cb.Name()
}

// Counts returns a snapshot of the breaker's request counters.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// IsOpen reports whether err is a fail-fast rejection from the breaker
// rather than a failure of the protected call itself.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}
