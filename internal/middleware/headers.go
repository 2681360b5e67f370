package middleware

import "net/http"

// trustedHeaders are set exclusively by the gateway after session
// validation. Backends trust them precisely because no caller-supplied
// value can survive past chain entry.
var trustedHeaders = []string{
	HeaderAuthorization,
	HeaderXUserID,
	HeaderXUserEmail,
	HeaderXUserRole,
	HeaderXSessionID,
}

// StripTrustedHeaders removes every gateway-owned identity header from
// the inbound request so a caller cannot forge an identity the backends
// would trust. Runs at chain entry, before authentication. The session
// id the caller legitimately sends travels in the same header, so the
// authentication filter extracts it before this value is needed again.
func StripTrustedHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// X-Session-Id is the caller's own session reference, not a
			// trust assertion; it is re-set from the validated session
			// after authentication.
			sessionID := r.Header.Get(HeaderXSessionID)

			for _, name := range trustedHeaders {
				r.Header.Del(name)
			}

			if sessionID != "" {
				r.Header.Set(HeaderXSessionID, sessionID)
			}

			next.ServeHTTP(w, r)
		})
	}
}
