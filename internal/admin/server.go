// Package admin exposes the internal control surface of the gateway:
// session installation and revocation for the authentication flow,
// circuit breaker inspection, health and metrics. It listens on a
// separate address and must never be reachable from the public edge.
package admin

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/avsessgw/internal/circuitbreaker"
	"github.com/vyrodovalexey/avsessgw/internal/observability"
	"github.com/vyrodovalexey/avsessgw/internal/session"
)

// ginModeOnce ensures gin.SetMode is only called once.
var ginModeOnce sync.Once

// Server is the admin API server.
type Server struct {
	engine         *gin.Engine
	store          session.Store
	breakers       *circuitbreaker.Registry
	sessionTimeout time.Duration
	logger         observability.Logger
	healthCheck    func(ctx context.Context) error
}

// ServerOption configures the admin server.
type ServerOption func(*Server)

// WithHealthCheck adds a dependency probe to /healthz, typically a
// redis PING. A failing probe turns the endpoint into a 503.
func WithHealthCheck(check func(ctx context.Context) error) ServerOption {
	return func(s *Server) {
		s.healthCheck = check
	}
}

// NewServer creates the admin API server.
func NewServer(
	store session.Store,
	breakers *circuitbreaker.Registry,
	sessionTimeout time.Duration,
	logger observability.Logger,
	opts ...ServerOption,
) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	if logger == nil {
		logger = observability.GetGlobalLogger().With(
			observability.String("component", "admin"),
		)
	}

	s := &Server{
		engine:         gin.New(),
		store:          store,
		breakers:       breakers,
		sessionTimeout: sessionTimeout,
		logger:         logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.engine.Use(gin.Recovery())
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	internal := s.engine.Group("/internal")
	internal.POST("/sessions", s.createSession)
	internal.DELETE("/sessions/:id", s.revokeSession)
	internal.DELETE("/users/:userId/sessions", s.revokeUserSessions)
	internal.GET("/breakers", s.breakerStats)
}

// Handler returns the admin API as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) health(c *gin.Context) {
	if s.healthCheck != nil {
		if err := s.healthCheck(c.Request.Context()); err != nil {
			s.logger.Warn("health check failed", observability.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// createSessionRequest is what the authentication flow posts after it
// has verified credentials. The gateway stores what it is given; it
// never checks passwords itself.
type createSessionRequest struct {
	UserID        string `json:"userId" binding:"required"`
	Email         string `json:"email" binding:"required"`
	Role          string `json:"role" binding:"required"`
	Token         string `json:"token" binding:"required"`
	RemoteAddress string `json:"remoteAddress"`
	Agent         string `json:"agent"`
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	sess := session.Session{
		UserID:        req.UserID,
		Email:         req.Email,
		Role:          req.Role,
		Token:         req.Token,
		CreatedAt:     now.UnixMilli(),
		LastAccessAt:  now.UnixMilli(),
		ExpiresAt:     now.Add(s.sessionTimeout).UnixMilli(),
		RemoteAddress: req.RemoteAddress,
		Agent:         req.Agent,
	}

	sessionID, err := s.store.Create(c.Request.Context(), sess)
	if err != nil {
		s.logger.Error("failed to create session",
			observability.String("user_id", req.UserID),
			observability.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"sessionId": sessionID,
		"expiresAt": sess.ExpiresAt,
	})
}

func (s *Server) revokeSession(c *gin.Context) {
	s.store.Revoke(c.Request.Context(), c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) revokeUserSessions(c *gin.Context) {
	s.store.RevokeAllForUser(c.Request.Context(), c.Param("userId"))
	c.Status(http.StatusNoContent)
}

func (s *Server) breakerStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"breakers": s.breakers.Stats()})
}
