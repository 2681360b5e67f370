package util

import (
	"bytes"
	"fmt"
	"net/http"
)

// ServerError represents a server-side error for circuit breaker tracking.
// It is used to signal that a backend returned a 5xx status code.
type ServerError struct {
	StatusCode int
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: status %d", e.StatusCode)
}

// NewServerError creates a new ServerError with the given status code.
func NewServerError(statusCode int) *ServerError {
	return &ServerError{StatusCode: statusCode}
}

// StatusCapturingResponseWriter wraps http.ResponseWriter to track the
// status code and the number of body bytes written. The request logging
// middleware uses it to report both after the handler has completed.
type StatusCapturingResponseWriter struct {
	http.ResponseWriter
	StatusCode    int
	Size          int
	HeaderWritten bool
}

// NewStatusCapturingResponseWriter creates a new StatusCapturingResponseWriter
// wrapping the provided http.ResponseWriter with a default status of 200 OK.
func NewStatusCapturingResponseWriter(w http.ResponseWriter) *StatusCapturingResponseWriter {
	return &StatusCapturingResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code and writes it to the underlying ResponseWriter.
func (w *StatusCapturingResponseWriter) WriteHeader(code int) {
	if w.HeaderWritten {
		return
	}
	w.StatusCode = code
	w.HeaderWritten = true
	w.ResponseWriter.WriteHeader(code)
}

// Write writes data to the underlying ResponseWriter, marks the header
// as written and accumulates the body size.
func (w *StatusCapturingResponseWriter) Write(b []byte) (int, error) {
	if !w.HeaderWritten {
		w.HeaderWritten = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.Size += n
	return n, err
}

// Flush implements http.Flusher interface for streaming support.
func (w *StatusCapturingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Compile-time interface assertion.
var _ http.Flusher = (*StatusCapturingResponseWriter)(nil)

// BufferingResponseWriter buffers the entire response in memory so that a
// caller can discard it and substitute another response. The proxy uses it
// to replace failing backend responses with the fallback: nothing reaches
// the client until FlushTo is called.
type BufferingResponseWriter struct {
	StatusCode int
	header     http.Header
	body       bytes.Buffer
}

// NewBufferingResponseWriter creates a new BufferingResponseWriter with a
// default status of 200 OK.
func NewBufferingResponseWriter() *BufferingResponseWriter {
	return &BufferingResponseWriter{
		StatusCode: http.StatusOK,
		header:     make(http.Header),
	}
}

// Header implements http.ResponseWriter.
func (w *BufferingResponseWriter) Header() http.Header {
	return w.header
}

// WriteHeader implements http.ResponseWriter.
func (w *BufferingResponseWriter) WriteHeader(code int) {
	w.StatusCode = code
}

// Write implements http.ResponseWriter.
func (w *BufferingResponseWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

// Body returns the buffered response body.
func (w *BufferingResponseWriter) Body() []byte {
	return w.body.Bytes()
}

// FlushTo writes the buffered headers, status and body to dst.
func (w *BufferingResponseWriter) FlushTo(dst http.ResponseWriter) error {
	for k, vv := range w.header {
		for _, v := range vv {
			dst.Header().Add(k, v)
		}
	}
	dst.WriteHeader(w.StatusCode)
	_, err := dst.Write(w.body.Bytes())
	return err
}
