package middleware

// HTTP header constants.
const (
	// HeaderContentType is the Content-Type header name.
	HeaderContentType = "Content-Type"

	// HeaderAuthorization is the Authorization header name.
	HeaderAuthorization = "Authorization"

	// HeaderXRequestID is the X-Request-ID header name.
	HeaderXRequestID = "X-Request-ID"

	// HeaderXForwardedFor is the X-Forwarded-For header name.
	HeaderXForwardedFor = "X-Forwarded-For"

	// HeaderXSessionID carries the session id on inbound requests and
	// the validated session id on forwarded ones.
	HeaderXSessionID = "X-Session-Id"

	// HeaderXUserID is the forwarded user id header name.
	HeaderXUserID = "X-User-Id"

	// HeaderXUserEmail is the forwarded user email header name.
	HeaderXUserEmail = "X-User-Email"

	// HeaderXUserRole is the forwarded user role header name.
	HeaderXUserRole = "X-User-Role"

	// HeaderRateLimitRetryAfter tells a throttled client when to retry.
	HeaderRateLimitRetryAfter = "X-Rate-Limit-Retry-After-Seconds"
)

// Content type constants.
const (
	// ContentTypeJSON is the JSON content type.
	ContentTypeJSON = "application/json"

	// ContentTypeText is the plain text content type.
	ContentTypeText = "text/plain; charset=utf-8"
)

// SessionCookieName is the fallback cookie checked when the session
// header is absent.
const SessionCookieName = "SESSION_ID"

// unknownClientKey is the rate limit key used when the client address
// cannot be resolved. All such requests share one bucket.
const unknownClientKey = "unknown"
