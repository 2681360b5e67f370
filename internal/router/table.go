// Package router matches request paths to configured backend routes and
// drives the per-route circuit breaker and fallback path.
package router

import (
	"sort"
	"strings"

	"github.com/vyrodovalexey/avsessgw/internal/config"
)

// Table is an immutable prefix-match routing table. Built once at
// startup; matching takes no locks.
type Table struct {
	routes []config.Route
}

// NewTable builds a table from the configured routes, ordered so that
// the longest prefix wins.
func NewTable(routes []config.Route) *Table {
	sorted := make([]config.Route, len(routes))
	copy(sorted, routes)

	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})

	return &Table{routes: sorted}
}

// Match returns the route owning path, preferring the longest matching
// prefix.
func (t *Table) Match(path string) (*config.Route, bool) {
	for i := range t.routes {
		if matchesPrefix(path, t.routes[i].Prefix) {
			return &t.routes[i], true
		}
	}
	return nil, false
}

// Routes returns the table contents in match order.
func (t *Table) Routes() []config.Route {
	return t.routes
}

// matchesPrefix reports whether path falls under prefix on a path
// segment boundary: /api/v1/products matches /api/v1/products and
// /api/v1/products/42 but not /api/v1/productsearch.
func matchesPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}
