// Package config provides configuration loading and validation for the
// session gateway.
package config

import (
	"time"
)

// GatewayConfig is the root configuration of the gateway.
type GatewayConfig struct {
	Server         ServerConfig         `yaml:"server"`
	Log            LogConfig            `yaml:"log"`
	Tracing        TracingConfig        `yaml:"tracing"`
	Redis          RedisConfig          `yaml:"redis"`
	Session        SessionConfig        `yaml:"session"`
	RateLimit      RateLimitConfig      `yaml:"rateLimit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
	Routes         []Route              `yaml:"routes"`
}

// ServerConfig holds listener configuration.
type ServerConfig struct {
	// ListenAddr is the address of the proxy listener.
	ListenAddr string `yaml:"listenAddr"`

	// AdminAddr is the address of the admin/metrics listener.
	AdminAddr string `yaml:"adminAddr"`

	// ReadTimeout bounds reading the full inbound request.
	ReadTimeout Duration `yaml:"readTimeout"`

	// WriteTimeout bounds writing the response.
	WriteTimeout Duration `yaml:"writeTimeout"`

	// ShutdownTimeout bounds graceful drain on shutdown.
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracingConfig holds tracing configuration.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// RedisConfig holds configuration for the shared Redis backing store.
// The same instance backs the session store and the rate-limit counters;
// both are independently failable collaborators of the gateway core.
type RedisConfig struct {
	// URL is a redis:// connection URL.
	URL string `yaml:"url"`

	PoolSize     int      `yaml:"poolSize"`
	MinIdleConns int      `yaml:"minIdleConns"`
	DialTimeout  Duration `yaml:"dialTimeout"`
	ReadTimeout  Duration `yaml:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout"`
}

// SessionConfig holds session lifecycle configuration.
type SessionConfig struct {
	// Timeout is the session TTL applied on create and renewal.
	Timeout Duration `yaml:"timeout"`

	// SlidingWindow controls renewal: a session whose remaining validity
	// drops below this window gets its expiry pushed forward on access.
	SlidingWindow Duration `yaml:"slidingWindow"`

	// Header is the request header carrying the session id.
	Header string `yaml:"header"`

	// Cookie is the fallback cookie name carrying the session id.
	Cookie string `yaml:"cookie"`
}

// RateLimitConfig holds per-client token bucket configuration.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// Capacity is the maximum bucket size per client key.
	Capacity int `yaml:"capacity"`

	// Refill is the number of tokens added per Window, trickled in
	// continuously (greedy refill).
	Refill int `yaml:"refill"`

	// Window is the refill window.
	Window Duration `yaml:"window"`

	// TrustedProxies lists proxy CIDRs whose X-Forwarded-For chain is
	// honored when resolving the client key. Empty means only the peer
	// address is used.
	TrustedProxies []string `yaml:"trustedProxies"`
}

// CircuitBreakerConfig holds circuit breaker configuration shared by all
// route breakers.
type CircuitBreakerConfig struct {
	// Threshold is the minimum number of requests before the failure
	// ratio is evaluated, and the number of trial requests admitted in
	// half-open state.
	Threshold int `yaml:"threshold"`

	// Timeout is how long the breaker stays open before probing.
	Timeout Duration `yaml:"timeout"`
}

// Route maps a path prefix to a backend target guarded by a named
// circuit breaker. The route table is loaded once at startup and is
// immutable thereafter.
type Route struct {
	// Name identifies the route in logs, metrics and the fallback body.
	Name string `yaml:"name"`

	// Prefix is the inbound path prefix, e.g. "/api/v1/products/".
	Prefix string `yaml:"prefix"`

	// Backend is the backend base URL, e.g. "http://products:8080".
	Backend string `yaml:"backend"`

	// Timeout bounds the backend call; exceeding it counts as a breaker
	// failure and yields the fallback.
	Timeout Duration `yaml:"timeout"`
}

// Default durations and limits.
const (
	defaultSessionTimeout  = 30 * time.Minute
	defaultSlidingWindow   = 5 * time.Minute
	defaultBucketCapacity  = 100
	defaultBucketRefill    = 100
	defaultRefillWindow    = time.Minute
	defaultBreakerTimeout  = 30 * time.Second
	defaultRouteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 15 * time.Second
)

// Default returns a GatewayConfig with default values. Loaded files
// override only the fields they set.
func Default() *GatewayConfig {
	return &GatewayConfig{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			AdminAddr:       ":9090",
			ShutdownTimeout: Duration(defaultShutdownTimeout),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			SamplingRate: 1.0,
		},
		Redis: RedisConfig{
			URL:          "redis://localhost:6379",
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  Duration(5 * time.Second),
			ReadTimeout:  Duration(3 * time.Second),
			WriteTimeout: Duration(3 * time.Second),
		},
		Session: SessionConfig{
			Timeout:       Duration(defaultSessionTimeout),
			SlidingWindow: Duration(defaultSlidingWindow),
			Header:        "X-Session-Id",
			Cookie:        "SESSION_ID",
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Capacity: defaultBucketCapacity,
			Refill:   defaultBucketRefill,
			Window:   Duration(defaultRefillWindow),
		},
		CircuitBreaker: CircuitBreakerConfig{
			Threshold: 5,
			Timeout:   Duration(defaultBreakerTimeout),
		},
	}
}

// RouteTimeout returns the effective timeout for a route, falling back to
// the default when unset.
func (r Route) RouteTimeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout.Duration()
	}
	return defaultRouteTimeout
}
