package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/avsessgw/internal/admin"
	"github.com/vyrodovalexey/avsessgw/internal/circuitbreaker"
	"github.com/vyrodovalexey/avsessgw/internal/config"
	"github.com/vyrodovalexey/avsessgw/internal/middleware"
	"github.com/vyrodovalexey/avsessgw/internal/observability"
	"github.com/vyrodovalexey/avsessgw/internal/proxy"
	"github.com/vyrodovalexey/avsessgw/internal/ratelimit"
	"github.com/vyrodovalexey/avsessgw/internal/router"
	"github.com/vyrodovalexey/avsessgw/internal/session"
)

// app owns every long-lived component of the gateway and the two HTTP
// listeners: the public proxy chain and the internal admin surface.
type app struct {
	cfg    *config.GatewayConfig
	logger observability.Logger
	tracer *observability.Tracer

	redisClient *redis.Client
	store       session.Store
	limiter     ratelimit.Limiter
	breakers    *circuitbreaker.Registry

	proxyServer *http.Server
	adminServer *http.Server
}

// newApp wires the filter chain in its fixed order: recovery, request
// id, request logging, trusted header stripping, rate limiting,
// authentication, then the routing handler.
func newApp(cfg *config.GatewayConfig, logger observability.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
	}

	if cfg.Tracing.Enabled {
		tracer, err := observability.NewTracer(observability.TracerConfig{
			ServiceName:  "avsessgw",
			OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
			SamplingRate: cfg.Tracing.SamplingRate,
			Enabled:      true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init tracing: %w", err)
		}
		a.tracer = tracer
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.PoolSize = cfg.Redis.PoolSize
	opts.MinIdleConns = cfg.Redis.MinIdleConns
	opts.DialTimeout = cfg.Redis.DialTimeout.Duration()
	opts.ReadTimeout = cfg.Redis.ReadTimeout.Duration()
	opts.WriteTimeout = cfg.Redis.WriteTimeout.Duration()
	a.redisClient = redis.NewClient(opts)

	a.store = session.NewRedisStore(
		a.redisClient,
		cfg.Session.Timeout.Duration(),
		cfg.Session.SlidingWindow.Duration(),
		session.WithLogger(logger),
	)

	a.limiter = ratelimit.NewRedisLimiter(
		a.redisClient,
		ratelimit.Limit{
			Capacity: cfg.RateLimit.Capacity,
			Refill:   cfg.RateLimit.Refill,
			Window:   cfg.RateLimit.Window.Duration(),
		},
		ratelimit.WithRedisLogger(logger),
	)

	a.breakers = circuitbreaker.NewRegistry(
		cfg.CircuitBreaker.Threshold,
		cfg.CircuitBreaker.Timeout.Duration(),
		logger,
	)

	routingHandler := router.New(
		router.NewTable(cfg.Routes),
		proxy.New(proxy.WithLogger(logger)),
		a.breakers,
		router.WithRouterLogger(logger),
	)

	a.proxyServer = &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      a.buildChain(routingHandler),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
	}

	adminAPI := admin.NewServer(
		a.store,
		a.breakers,
		cfg.Session.Timeout.Duration(),
		logger,
		admin.WithHealthCheck(func(ctx context.Context) error {
			return a.redisClient.Ping(ctx).Err()
		}),
	)
	a.adminServer = &http.Server{
		Addr:    cfg.Server.AdminAddr,
		Handler: adminAPI.Handler(),
	}

	return a, nil
}

func (a *app) buildChain(terminal http.Handler) http.Handler {
	mws := []middleware.Middleware{
		middleware.Recovery(a.logger),
		middleware.RequestID(),
		middleware.RequestLogging(a.logger),
		middleware.StripTrustedHeaders(),
	}

	if a.cfg.RateLimit.Enabled {
		mws = append(mws, middleware.RateLimit(
			a.limiter,
			middleware.NewClientKeyResolver(a.cfg.RateLimit.TrustedProxies, a.logger),
			a.cfg.RateLimit.Window.Duration(),
			a.logger,
		))
	}

	mws = append(mws, middleware.Authenticate(
		a.store,
		a.cfg.Session.Header,
		a.cfg.Session.Cookie,
		a.logger,
	))

	return middleware.Chain(terminal, mws...)
}

// Run starts both listeners and blocks until SIGINT/SIGTERM, then
// drains them within the configured shutdown timeout.
func (a *app) Run() error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("proxy listener starting",
			observability.String("addr", a.proxyServer.Addr),
		)
		if err := a.proxyServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("proxy listener: %w", err)
		}
	}()

	go func() {
		a.logger.Info("admin listener starting",
			observability.String("addr", a.adminServer.Addr),
		)
		if err := a.adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin listener: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.shutdown()
		return err
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received",
			observability.String("signal", sig.String()),
		)
		a.shutdown()
		return nil
	}
}

func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := a.proxyServer.Shutdown(ctx); err != nil {
		a.logger.Warn("proxy listener shutdown", observability.Error(err))
	}
	if err := a.adminServer.Shutdown(ctx); err != nil {
		a.logger.Warn("admin listener shutdown", observability.Error(err))
	}

	if err := a.limiter.Close(); err != nil {
		a.logger.Warn("limiter close", observability.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("session store close", observability.Error(err))
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown", observability.Error(err))
		}
	}

	a.logger.Info("gateway stopped")
}
