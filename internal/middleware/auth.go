package middleware

import (
	"errors"
	"io"
	"net/http"

	"github.com/vyrodovalexey/avsessgw/internal/observability"
	"github.com/vyrodovalexey/avsessgw/internal/session"
)

// 401 bodies are part of the external contract and must stay stable.
const (
	unauthorizedMissingSession = "Unauthorized request: Please, first authenticate"
	unauthorizedInvalidSession = "Unauthorized request: Invalid or expired session"
)

// Authenticate returns the identity-enforcement middleware. It extracts
// the session id from the header or the fallback cookie, validates it
// against the store and stamps the forwarded request with the trusted
// identity headers. A store outage during lookup is surfaced as a 500:
// authentication integrity must not silently degrade.
func Authenticate(store session.Store, headerName, cookieName string, logger observability.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := extractSessionID(r, headerName, cookieName)
			if sessionID == "" {
				authRejectionsTotal.WithLabelValues("missing").Inc()
				unauthorized(w, unauthorizedMissingSession)
				return
			}

			sess, err := store.Get(r.Context(), sessionID)
			if err != nil {
				if errors.Is(err, session.ErrSessionNotFound) {
					authRejectionsTotal.WithLabelValues("invalid").Inc()
					logger.Debug("session rejected",
						observability.String("session_id", sessionID),
						observability.String("path", r.URL.Path),
					)
					unauthorized(w, unauthorizedInvalidSession)
					return
				}

				authRejectionsTotal.WithLabelValues("store_error").Inc()
				logger.Error("session lookup failed",
					observability.String("session_id", sessionID),
					observability.Error(err),
				)
				w.Header().Set(HeaderContentType, ContentTypeJSON)
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, `{"error":"internal server error"}`)
				return
			}

			logger.Debug("session validated",
				observability.String("user_id", sess.UserID),
			)

			// Stamp the trusted identity headers; chain entry already
			// removed anything the caller supplied under these names.
			r.Header.Set(HeaderAuthorization, "Bearer "+sess.Token)
			r.Header.Set(HeaderXUserID, sess.UserID)
			r.Header.Set(HeaderXUserEmail, sess.Email)
			r.Header.Set(HeaderXUserRole, sess.Role)
			r.Header.Set(HeaderXSessionID, sessionID)

			ctx := observability.ContextWithIdentity(r.Context(), sess.UserID, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractSessionID reads the session id from the header, falling back
// to the named cookie.
func extractSessionID(r *http.Request, headerName, cookieName string) string {
	if id := r.Header.Get(headerName); id != "" {
		return id
	}

	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func unauthorized(w http.ResponseWriter, body string) {
	w.Header().Set(HeaderContentType, ContentTypeText)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = io.WriteString(w, body)
}
