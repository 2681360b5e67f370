// Package session owns the distributed session lifecycle of the gateway:
// creation, sliding-window renewal, lazy expiry and multi-session
// revocation per user, backed by a TTL-capable Redis store.
package session

import "time"

// Session represents an authenticated principal's active login. The
// gateway stores what the upstream authentication flow gives it; the
// session id is opaque and distinct from the backend credential Token.
// All timestamps are epoch milliseconds, matching the wire format shared
// with the authentication service.
type Session struct {
	UserID        string `json:"userId"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	Token         string `json:"token"`
	CreatedAt     int64  `json:"createdAt"`
	LastAccessAt  int64  `json:"lastAccessAt"`
	ExpiresAt     int64  `json:"expiresAt"`
	RemoteAddress string `json:"remoteAddress"`
	Agent         string `json:"agent"`
}

// Expired reports whether the session is logically expired at now.
// Logical expiry is checked independently of the storage TTL: the
// backing store's own eviction may not have fired yet at the instant
// of a lookup.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt <= now.UnixMilli()
}

// Remaining returns the validity left at now. Negative for expired
// sessions.
func (s *Session) Remaining(now time.Time) time.Duration {
	return time.Duration(s.ExpiresAt-now.UnixMilli()) * time.Millisecond
}
