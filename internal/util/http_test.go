package util

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCapturingResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewStatusCapturingResponseWriter(rec)

	assert.Equal(t, http.StatusOK, w.StatusCode)
	assert.False(t, w.HeaderWritten)

	w.WriteHeader(http.StatusBadGateway)
	_, _ = io.WriteString(w, "bad")

	assert.Equal(t, http.StatusBadGateway, w.StatusCode)
	assert.True(t, w.HeaderWritten)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	// A second WriteHeader must not override the first.
	w.WriteHeader(http.StatusOK)
	assert.Equal(t, http.StatusBadGateway, w.StatusCode)
}

func TestStatusCapturingResponseWriter_CountsBodySize(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewStatusCapturingResponseWriter(rec)

	_, _ = io.WriteString(w, "hello")
	_, _ = io.WriteString(w, " world")

	assert.Equal(t, 11, w.Size)
	assert.Equal(t, "hello world", rec.Body.String())
	assert.True(t, w.HeaderWritten, "writing the body implies the header")
	assert.Equal(t, http.StatusOK, w.StatusCode)
}

func TestBufferingResponseWriter_HoldsBackResponse(t *testing.T) {
	buf := NewBufferingResponseWriter()

	buf.Header().Set("X-Test", "yes")
	buf.WriteHeader(http.StatusCreated)
	_, err := io.WriteString(buf, "hello")
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, buf.StatusCode)
	assert.Equal(t, "hello", string(buf.Body()))

	rec := httptest.NewRecorder()
	require.NoError(t, buf.FlushTo(rec))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "yes", rec.Header().Get("X-Test"))
}

func TestBufferingResponseWriter_DiscardedResponseNeverReachesClient(t *testing.T) {
	buf := NewBufferingResponseWriter()
	buf.WriteHeader(http.StatusInternalServerError)
	_, _ = io.WriteString(buf, "backend stack trace")

	// Caller decides not to flush; the client-side recorder stays clean.
	rec := httptest.NewRecorder()
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "backend stack trace", string(buf.Body()))
}

func TestServerError(t *testing.T) {
	err := NewServerError(http.StatusBadGateway)
	assert.Contains(t, err.Error(), "502")
}

func TestConfigError(t *testing.T) {
	err := NewConfigError("session.timeout", "must be positive")
	assert.Equal(t, "config error at session.timeout: must be positive", err.Error())
}
