package session

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned by Get when the session id is unknown
// or the session has logically expired.
var ErrSessionNotFound = errors.New("session not found")

// Store is the authoritative owner of session records. Filters hold only
// a transient read-only view per request.
type Store interface {
	// Create persists a new session, generating a fresh random id.
	// Any pre-existing sessions of the same user are revoked first
	// (single-active-session-per-user policy). Storage errors propagate.
	Create(ctx context.Context, s Session) (string, error)

	// Get fetches a session by id. Logically expired records are treated
	// as absent and revoked asynchronously. Sessions close to expiry are
	// renewed before being returned. Returns ErrSessionNotFound when
	// absent; storage errors propagate.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Revoke removes a session id from its owner's index. Idempotent and
	// best-effort: failures are logged, never returned.
	Revoke(ctx context.Context, sessionID string)

	// RevokeAllForUser revokes every session in the user's index and
	// drops the index entry. Best-effort, like Revoke.
	RevokeAllForUser(ctx context.Context, userID string)

	// Close releases the underlying store connection.
	Close() error
}
