package router

import (
	"net/http"

	"github.com/vyrodovalexey/avsessgw/internal/circuitbreaker"
	"github.com/vyrodovalexey/avsessgw/internal/config"
	"github.com/vyrodovalexey/avsessgw/internal/observability"
	"github.com/vyrodovalexey/avsessgw/internal/util"
)

// Forwarder sends a matched request to its backend. The proxy package
// provides the production implementation.
type Forwarder interface {
	Forward(w http.ResponseWriter, r *http.Request, route config.Route) error
}

// Router is the terminal handler of the filter chain. It matches the
// request path, runs the forward through the route's circuit breaker
// and substitutes the fallback response when the backend fails or the
// circuit is open.
//
// Backend responses are buffered in full before anything reaches the
// client, so a late backend failure can still be replaced. 4xx
// responses are valid backend answers and pass through; only 5xx and
// transport errors count as failures.
type Router struct {
	table     *Table
	forwarder Forwarder
	breakers  *circuitbreaker.Registry
	fallback  http.Handler
	logger    observability.Logger
}

// RouterOption is a functional option for configuring the router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger for the router.
func WithRouterLogger(logger observability.Logger) RouterOption {
	return func(rt *Router) {
		rt.logger = logger
	}
}

// WithFallback overrides the degraded-mode handler.
func WithFallback(h http.Handler) RouterOption {
	return func(rt *Router) {
		rt.fallback = h
	}
}

// New creates the routing handler.
func New(table *Table, forwarder Forwarder, breakers *circuitbreaker.Registry, opts ...RouterOption) *Router {
	rt := &Router{
		table:     table,
		forwarder: forwarder,
		breakers:  breakers,
		logger:    observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(rt)
	}

	if rt.fallback == nil {
		rt.fallback = NewFallbackHandler(rt.logger)
	}

	return rt
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, ok := rt.table.Match(r.URL.Path)
	if !ok {
		rt.logger.Debug("no route for path",
			observability.String("path", r.URL.Path),
			observability.String("method", r.Method),
		)
		http.NotFound(w, r)
		return
	}

	r = r.WithContext(util.ContextWithRoute(r.Context(), route.Name))

	breaker := rt.breakers.Get(route.Name)
	buf := util.NewBufferingResponseWriter()

	_, err := breaker.Execute(func() (interface{}, error) {
		if ferr := rt.forwarder.Forward(buf, r, *route); ferr != nil {
			return nil, ferr
		}
		if buf.StatusCode >= 500 {
			return nil, util.NewServerError(buf.StatusCode)
		}
		return nil, nil
	})

	if err != nil {
		if circuitbreaker.IsOpen(err) {
			rt.logger.Warn("circuit breaker rejected request",
				observability.String("route", route.Name),
				observability.String("path", r.URL.Path),
			)
		} else {
			rt.logger.Error("backend call failed",
				observability.String("route", route.Name),
				observability.String("path", r.URL.Path),
				observability.Error(err),
			)
		}

		rt.fallback.ServeHTTP(w, r)
		return
	}

	if err := buf.FlushTo(w); err != nil {
		rt.logger.Debug("failed to write response to client",
			observability.String("route", route.Name),
			observability.Error(err),
		)
	}
}
