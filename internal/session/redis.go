package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/avsessgw/internal/observability"
)

// Key prefixes in the shared Redis store.
const (
	sessionKeyPrefix     = "session:"
	userSessionKeyPrefix = "session:user:"
)

// revokeTimeout bounds best-effort revocations detached from a request.
const revokeTimeout = 5 * time.Second

// RedisStore implements Store on top of a TTL-capable Redis backend.
// Renewal takes no locks: concurrent renewals of the same id are benign
// last-writer-wins races — both writers extend validity, neither
// shortens it.
type RedisStore struct {
	client        *redis.Client
	timeout       time.Duration
	slidingWindow time.Duration
	logger        observability.Logger
	now           func() time.Time
}

// Compile-time interface assertion.
var _ Store = (*RedisStore)(nil)

// RedisStoreOption is a functional option for configuring the store.
type RedisStoreOption func(*RedisStore)

// WithLogger sets the logger for the store.
func WithLogger(logger observability.Logger) RedisStoreOption {
	return func(s *RedisStore) {
		s.logger = logger
	}
}

// WithClock overrides the store clock. Tests use it to drive logical
// expiry and renewal without sleeping.
func WithClock(now func() time.Time) RedisStoreOption {
	return func(s *RedisStore) {
		s.now = now
	}
}

// NewRedisStore creates a session store with the given session timeout
// and sliding renewal window.
func NewRedisStore(client *redis.Client, timeout, slidingWindow time.Duration, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:        client,
		timeout:       timeout,
		slidingWindow: slidingWindow,
		logger:        observability.NopLogger(),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// sessionKey returns the primary record key for a session id.
func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// userKey returns the session index key for a user id.
func userKey(userID string) string {
	return userSessionKeyPrefix + userID
}

// Create implements Store. Pre-existing sessions of the same user are
// revoked first, so logging in elsewhere invalidates prior logins.
func (s *RedisStore) Create(ctx context.Context, sess Session) (string, error) {
	start := s.now()
	sessionID := uuid.New().String()

	s.RevokeAllForUser(ctx, sess.UserID)

	data, err := json.Marshal(sess)
	if err != nil {
		sessionOperationsTotal.WithLabelValues("create", "error").Inc()
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(sessionID), data, s.timeout).Err(); err != nil {
		sessionOperationsTotal.WithLabelValues("create", "error").Inc()
		return "", fmt.Errorf("redis set error: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, userKey(sess.UserID), sessionID)
	pipe.Expire(ctx, userKey(sess.UserID), s.timeout)
	if _, err := pipe.Exec(ctx); err != nil {
		sessionOperationsTotal.WithLabelValues("create", "error").Inc()
		return "", fmt.Errorf("redis index update error: %w", err)
	}

	sessionOperationsTotal.WithLabelValues("create", "success").Inc()
	sessionOperationDuration.WithLabelValues("create").Observe(s.now().Sub(start).Seconds())

	s.logger.Info("session created",
		observability.String("session_id", sessionID),
		observability.String("user_id", sess.UserID),
		observability.String("remote_address", sess.RemoteAddress),
	)

	return sessionID, nil
}

// Get implements Store. Expiry is checked logically in addition to the
// storage TTL; a record found past its expiresAt is treated as absent
// and revoked asynchronously.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	start := s.now()

	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		sessionOperationsTotal.WithLabelValues("get", "not_found").Inc()
		return nil, ErrSessionNotFound
	}
	if err != nil {
		sessionOperationsTotal.WithLabelValues("get", "error").Inc()
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		sessionOperationsTotal.WithLabelValues("get", "error").Inc()
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", sessionID, err)
	}

	now := s.now()

	if sess.Expired(now) {
		// Lazy expiry cleanup: the store TTL may not have fired yet.
		go func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), revokeTimeout)
			defer cancel()
			s.Revoke(cleanupCtx, sessionID)
		}()

		sessionOperationsTotal.WithLabelValues("get", "expired").Inc()
		return nil, ErrSessionNotFound
	}

	if sess.Remaining(now) <= s.slidingWindow {
		sess = s.renew(ctx, sessionID, sess, now)
	}

	sessionOperationsTotal.WithLabelValues("get", "success").Inc()
	sessionOperationDuration.WithLabelValues("get").Observe(s.now().Sub(start).Seconds())

	return &sess, nil
}

// renew pushes the session expiry forward and re-persists the full
// record with the full TTL. A failed renewal write is logged and the
// stored record returned unchanged; the read itself stays valid.
func (s *RedisStore) renew(ctx context.Context, sessionID string, sess Session, now time.Time) Session {
	renewed := sess
	renewed.LastAccessAt = now.UnixMilli()
	renewed.ExpiresAt = now.Add(s.timeout).UnixMilli()

	data, err := json.Marshal(renewed)
	if err != nil {
		s.logger.Warn("failed to marshal renewed session",
			observability.String("session_id", sessionID),
			observability.Error(err),
		)
		return sess
	}

	if err := s.client.Set(ctx, sessionKey(sessionID), data, s.timeout).Err(); err != nil {
		s.logger.Warn("failed to renew session",
			observability.String("session_id", sessionID),
			observability.Error(err),
		)
		return sess
	}

	sessionRenewalsTotal.Inc()

	s.logger.Debug("session renewed",
		observability.String("session_id", sessionID),
		observability.String("user_id", sess.UserID),
	)

	return renewed
}

// Revoke implements Store. Revocation is best-effort and must not block
// the caller: failures are logged, never propagated. Revoking an unknown
// or already-revoked id is a no-op.
func (s *RedisStore) Revoke(ctx context.Context, sessionID string) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return
	}
	if err != nil {
		s.logger.Error("failed to look up session for revocation",
			observability.String("session_id", sessionID),
			observability.Error(err),
		)
		return
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.logger.Error("failed to unmarshal session for revocation",
			observability.String("session_id", sessionID),
			observability.Error(err),
		)
		return
	}

	pipe := s.client.Pipeline()
	pipe.SRem(ctx, userKey(sess.UserID), sessionID)
	pipe.Del(ctx, sessionKey(sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		sessionOperationsTotal.WithLabelValues("revoke", "error").Inc()
		s.logger.Error("failed to revoke session",
			observability.String("session_id", sessionID),
			observability.Error(err),
		)
		return
	}

	sessionOperationsTotal.WithLabelValues("revoke", "success").Inc()

	s.logger.Info("session revoked",
		observability.String("session_id", sessionID),
		observability.String("user_id", sess.UserID),
	)
}

// RevokeAllForUser implements Store. Stale index members are tolerated
// and cleaned up opportunistically.
func (s *RedisStore) RevokeAllForUser(ctx context.Context, userID string) {
	sessionIDs, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		s.logger.Error("failed to list user sessions",
			observability.String("user_id", userID),
			observability.Error(err),
		)
		return
	}

	for _, sessionID := range sessionIDs {
		s.Revoke(ctx, sessionID)
	}

	if err := s.client.Del(ctx, userKey(userID)).Err(); err != nil {
		s.logger.Error("failed to drop user session index",
			observability.String("user_id", userID),
			observability.Error(err),
		)
		return
	}

	if len(sessionIDs) > 0 {
		s.logger.Info("all sessions revoked for user",
			observability.String("user_id", userID),
			observability.Int("count", len(sessionIDs)),
		)
	}
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
