package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avsessgw/internal/observability"
)

// capturingLogger records every log call so tests can assert on messages
// and fields.
type capturingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level  string
	msg    string
	fields []observability.Field
}

func (l *capturingLogger) log(level, msg string, fields []observability.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (l *capturingLogger) Debug(msg string, fields ...observability.Field) { l.log("debug", msg, fields) }
func (l *capturingLogger) Info(msg string, fields ...observability.Field)  { l.log("info", msg, fields) }
func (l *capturingLogger) Warn(msg string, fields ...observability.Field)  { l.log("warn", msg, fields) }
func (l *capturingLogger) Error(msg string, fields ...observability.Field) { l.log("error", msg, fields) }
func (l *capturingLogger) Fatal(msg string, fields ...observability.Field) { l.log("fatal", msg, fields) }
func (l *capturingLogger) With(...observability.Field) observability.Logger {
	return l
}
func (l *capturingLogger) WithContext(context.Context) observability.Logger {
	return l
}
func (l *capturingLogger) Sync() error { return nil }

// find returns the first entry with the given message.
func (l *capturingLogger) find(msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

func fieldString(fields []observability.Field, key string) string {
	for _, f := range fields {
		if f.Key == key {
			return f.String
		}
	}
	return ""
}

func TestClientKeyResolver_RemoteAddrOnly(t *testing.T) {
	res := NewClientKeyResolver(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:44321"
	req.Header.Set(HeaderXForwardedFor, "198.51.100.1")

	assert.Equal(t, "203.0.113.7", res.Resolve(req),
		"forwarding headers are ignored without trusted proxies")
}

func TestClientKeyResolver_TrustedProxyUsesXFF(t *testing.T) {
	res := NewClientKeyResolver([]string{"10.0.0.0/8"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:44321"
	req.Header.Set(HeaderXForwardedFor, "198.51.100.1, 10.0.0.9")

	assert.Equal(t, "198.51.100.1", res.Resolve(req))
}

func TestClientKeyResolver_UntrustedPeerIgnoresXFF(t *testing.T) {
	res := NewClientKeyResolver([]string{"10.0.0.0/8"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:44321"
	req.Header.Set(HeaderXForwardedFor, "198.51.100.1")

	assert.Equal(t, "203.0.113.7", res.Resolve(req))
}

func TestClientKeyResolver_SingleIPTrustEntry(t *testing.T) {
	res := NewClientKeyResolver([]string{"10.0.0.5"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:44321"
	req.Header.Set(HeaderXForwardedFor, "198.51.100.1")

	assert.Equal(t, "198.51.100.1", res.Resolve(req))
}

func TestClientKeyResolver_UnresolvableFallsBackToUnknown(t *testing.T) {
	res := NewClientKeyResolver(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ""

	assert.Equal(t, unknownClientKey, res.Resolve(req))
}

func TestClientKeyResolver_LogsResolvedAddress(t *testing.T) {
	logger := &capturingLogger{}
	res := NewClientKeyResolver(nil, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?page=2", nil)
	req.RemoteAddr = "203.0.113.7:44321"

	res.Resolve(req)

	entry, ok := logger.find("resolved client address")
	require.True(t, ok, "Resolve must emit a diagnostic log line")
	assert.Equal(t, "debug", entry.level)
	assert.Equal(t, "203.0.113.7", fieldString(entry.fields, "client_address"))
	assert.Equal(t, http.MethodGet, fieldString(entry.fields, "method"))
	assert.Equal(t, "/api/v1/products?page=2", fieldString(entry.fields, "uri"))
}
