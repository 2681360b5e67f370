// Package middleware provides the HTTP filter chain of the gateway.
// Each filter is a plain func(http.Handler) http.Handler composed into
// an explicit ordered list built once at startup.
package middleware

import "net/http"

// Middleware wraps an http.Handler with additional behavior. A filter
// short-circuits the chain by writing a response and not calling next.
type Middleware func(http.Handler) http.Handler

// Chain composes middlewares around h. The first middleware listed runs
// outermost, so Chain(h, a, b, c) handles a request as a -> b -> c -> h.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
