package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vyrodovalexey/avsessgw/internal/util"
)

// Validate checks the configuration for errors that would make the
// gateway misbehave at runtime. It returns the first error found.
func (c *GatewayConfig) Validate() error {
	if c.Server.ListenAddr == "" {
		return util.NewConfigError("server.listenAddr", "is required")
	}

	if c.Redis.URL == "" {
		return util.NewConfigError("redis.url", "is required")
	}

	if c.Session.Timeout <= 0 {
		return util.NewConfigError("session.timeout", "must be positive")
	}
	if c.Session.SlidingWindow <= 0 {
		return util.NewConfigError("session.slidingWindow", "must be positive")
	}
	if c.Session.SlidingWindow >= c.Session.Timeout {
		return util.NewConfigError("session.slidingWindow", "must be shorter than session.timeout")
	}
	if c.Session.Header == "" {
		return util.NewConfigError("session.header", "is required")
	}
	if c.Session.Cookie == "" {
		return util.NewConfigError("session.cookie", "is required")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Capacity <= 0 {
			return util.NewConfigError("rateLimit.capacity", "must be positive")
		}
		if c.RateLimit.Refill <= 0 {
			return util.NewConfigError("rateLimit.refill", "must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return util.NewConfigError("rateLimit.window", "must be positive")
		}
	}

	if c.CircuitBreaker.Threshold <= 0 {
		return util.NewConfigError("circuitBreaker.threshold", "must be positive")
	}
	if c.CircuitBreaker.Timeout <= 0 {
		return util.NewConfigError("circuitBreaker.timeout", "must be positive")
	}

	if len(c.Routes) == 0 {
		return util.NewConfigError("routes", "at least one route is required")
	}

	return c.validateRoutes()
}

// validateRoutes checks route names, prefixes and backend URLs.
func (c *GatewayConfig) validateRoutes() error {
	names := make(map[string]bool, len(c.Routes))
	prefixes := make(map[string]bool, len(c.Routes))

	for i, route := range c.Routes {
		field := fmt.Sprintf("routes[%d]", i)

		if route.Name == "" {
			return util.NewConfigError(field+".name", "is required")
		}
		if names[route.Name] {
			return util.NewConfigError(field+".name", "duplicate route name: "+route.Name)
		}
		names[route.Name] = true

		if route.Prefix == "" || !strings.HasPrefix(route.Prefix, "/") {
			return util.NewConfigError(field+".prefix", "must start with /")
		}
		if prefixes[route.Prefix] {
			return util.NewConfigError(field+".prefix", "duplicate route prefix: "+route.Prefix)
		}
		prefixes[route.Prefix] = true

		u, err := url.Parse(route.Backend)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return util.NewConfigError(field+".backend", "must be an absolute URL")
		}
	}

	return nil
}
