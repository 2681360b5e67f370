// Package proxy forwards matched requests to their route backends over
// a shared HTTP transport.
package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avsessgw/internal/config"
	"github.com/vyrodovalexey/avsessgw/internal/observability"
)

// tracer is the OTEL tracer for backend calls.
var tracer = otel.Tracer("avsessgw/proxy")

// hopHeaders are headers that must not be forwarded to backends.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// errHolderKey carries the transport error slot through the request
// context so the ReverseProxy error handler can report failures to
// Forward instead of writing its own response.
type errHolderKey struct{}

type errHolder struct {
	err error
}

// Proxy implements router.Forwarder on top of httputil.ReverseProxy,
// one reverse proxy per route, built lazily and cached.
type Proxy struct {
	transport http.RoundTripper
	logger    observability.Logger

	mu      sync.RWMutex
	proxies map[string]*httputil.ReverseProxy
}

// Option is a functional option for configuring the proxy.
type Option func(*Proxy)

// WithLogger sets the logger for the proxy.
func WithLogger(logger observability.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// WithTransport overrides the backend transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(p *Proxy) {
		p.transport = transport
	}
}

// New creates a proxy with a pooled transport.
func New(opts ...Option) *Proxy {
	p := &Proxy{
		transport: defaultTransport(),
		logger:    observability.NopLogger(),
		proxies:   make(map[string]*httputil.ReverseProxy),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func defaultTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Forward implements router.Forwarder. A transport failure or backend
// timeout is returned as an error without writing to w; the response
// writer is only touched when the backend answered.
func (p *Proxy) Forward(w http.ResponseWriter, r *http.Request, route config.Route) error {
	rp, err := p.proxyFor(route)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(r.Context(), route.RouteTimeout())
	defer cancel()

	ctx, span := tracer.Start(ctx, "proxy.forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("route.name", route.Name),
			attribute.String("route.backend", route.Backend),
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		),
	)
	defer span.End()

	holder := &errHolder{}
	ctx = context.WithValue(ctx, errHolderKey{}, holder)

	rp.ServeHTTP(w, r.WithContext(ctx))

	if holder.err != nil {
		span.RecordError(holder.err)
		span.SetStatus(codes.Error, holder.err.Error())
		return fmt.Errorf("backend %s unreachable: %w", route.Name, holder.err)
	}

	return nil
}

// proxyFor returns the cached reverse proxy for the route, building it
// on first use.
func (p *Proxy) proxyFor(route config.Route) (*httputil.ReverseProxy, error) {
	p.mu.RLock()
	rp, ok := p.proxies[route.Name]
	p.mu.RUnlock()
	if ok {
		return rp, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if rp, ok := p.proxies[route.Name]; ok {
		return rp, nil
	}

	target, err := url.Parse(route.Backend)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url for route %s: %w", route.Name, err)
	}

	rp = &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.Host = target.Host
			removeHopHeaders(req.Header)
		},
		Transport:     p.transport,
		FlushInterval: -1,
		ErrorHandler:  p.handleError,
	}

	p.proxies[route.Name] = rp
	return rp, nil
}

// handleError reports transport failures back to Forward through the
// context holder. Nothing is written to the client here: the caller
// owns the failure response.
func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	p.logger.Error("backend request failed",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.Error(err),
	)

	if holder, ok := r.Context().Value(errHolderKey{}).(*errHolder); ok {
		holder.err = err
		return
	}

	w.WriteHeader(http.StatusBadGateway)
}

func removeHopHeaders(h http.Header) {
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
