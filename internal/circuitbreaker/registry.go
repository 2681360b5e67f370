package circuitbreaker

import (
	"sort"
	"sync"
	"time"

	"github.com/vyrodovalexey/avsessgw/internal/observability"
)

// Registry holds one breaker per route, created lazily with shared
// settings. Safe for concurrent use.
type Registry struct {
	threshold int
	timeout   time.Duration
	logger    observability.Logger

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry creates a registry whose breakers share the given
// threshold and open-state timeout.
func NewRegistry(threshold int, timeout time.Duration, logger observability.Logger) *Registry {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Registry{
		threshold: threshold,
		timeout:   timeout,
		logger:    logger,
		breakers:  make(map[string]*Breaker),
	}
}

// Get returns the breaker for the named route, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}

	b = NewBreaker(name, r.threshold, r.timeout, WithBreakerLogger(r.logger))
	r.breakers[name] = b
	return b
}

// Stat is a point-in-time view of one breaker, for the admin API.
type Stat struct {
	Route         string `json:"route"`
	State         string `json:"state"`
	Requests      uint32 `json:"requests"`
	TotalFailures uint32 `json:"totalFailures"`
}

// Stats returns a snapshot of every breaker, ordered by route name.
func (r *Registry) Stats() []Stat {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]Stat, 0, len(r.breakers))
	for name, b := range r.breakers {
		counts := b.Counts()
		stats = append(stats, Stat{
			Route:         name,
			State:         b.State().String(),
			Requests:      counts.Requests,
			TotalFailures: counts.TotalFailures,
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Route < stats[j].Route
	})

	return stats
}
