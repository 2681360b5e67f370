package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend failure")

func failN(t *testing.T, b *Breaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := b.Execute(func() (interface{}, error) {
			return nil, errBackend
		})
		require.Error(t, err)
	}
}

func TestBreaker_StaysClosedOnSuccess(t *testing.T) {
	b := NewBreaker("products", 5, time.Minute)

	for i := 0; i < 20; i++ {
		_, err := b.Execute(func() (interface{}, error) {
			return nil, nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_TripsAfterThresholdFailures(t *testing.T) {
	b := NewBreaker("products", 5, time.Minute)

	failN(t, b, 5)

	assert.Equal(t, gobreaker.StateOpen, b.State())
}

func TestBreaker_OpenFailsFast(t *testing.T) {
	b := NewBreaker("products", 5, time.Minute)

	failN(t, b, 5)
	require.Equal(t, gobreaker.StateOpen, b.State())

	calls := 0
	_, err := b.Execute(func() (interface{}, error) {
		calls++
		return nil, nil
	})

	require.Error(t, err)
	assert.True(t, IsOpen(err))
	assert.Zero(t, calls, "open breaker must not invoke the protected call")
}

func TestBreaker_BelowThresholdStaysClosed(t *testing.T) {
	b := NewBreaker("products", 5, time.Minute)

	failN(t, b, 4)

	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b := NewBreaker("products", 2, 50*time.Millisecond)

	failN(t, b, 2)
	require.Equal(t, gobreaker.StateOpen, b.State())

	time.Sleep(60 * time.Millisecond)

	_, err := b.Execute(func() (interface{}, error) {
		return nil, nil
	})
	require.NoError(t, err)

	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("products", 2, 50*time.Millisecond)

	failN(t, b, 2)
	require.Equal(t, gobreaker.StateOpen, b.State())

	time.Sleep(60 * time.Millisecond)

	_, err := b.Execute(func() (interface{}, error) {
		return nil, errBackend
	})
	require.Error(t, err)

	assert.Equal(t, gobreaker.StateOpen, b.State())
}

func TestIsOpen(t *testing.T) {
	assert.True(t, IsOpen(gobreaker.ErrOpenState))
	assert.True(t, IsOpen(gobreaker.ErrTooManyRequests))
	assert.False(t, IsOpen(errBackend))
	assert.False(t, IsOpen(nil))
}

func TestRegistry_GetReturnsSameInstance(t *testing.T) {
	r := NewRegistry(5, time.Minute, nil)

	b1 := r.Get("products")
	b2 := r.Get("products")
	b3 := r.Get("payments")

	assert.Same(t, b1, b2)
	assert.NotSame(t, b1, b3)
}

func TestRegistry_BreakersAreIsolated(t *testing.T) {
	r := NewRegistry(2, time.Minute, nil)

	failN(t, r.Get("products"), 2)

	assert.Equal(t, gobreaker.StateOpen, r.Get("products").State())
	assert.Equal(t, gobreaker.StateClosed, r.Get("payments").State())
}

func TestRegistry_Stats(t *testing.T) {
	r := NewRegistry(5, time.Minute, nil)

	_, err := r.Get("products").Execute(func() (interface{}, error) { return nil, nil })
	require.NoError(t, err)
	r.Get("payments")

	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "payments", stats[0].Route)
	assert.Equal(t, "products", stats[1].Route)
	assert.Equal(t, "closed", stats[1].State)
	assert.Equal(t, uint32(1), stats[1].Requests)
}
