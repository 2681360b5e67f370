package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avsessgw/internal/config"
	"github.com/vyrodovalexey/avsessgw/internal/util"
)

func TestProxy_ForwardSuccess(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/products/42", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("X-Backend", "products")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "created")
	}))
	defer backend.Close()

	p := New()
	route := config.Route{Name: "products", Prefix: "/api/v1/products", Backend: backend.URL}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/42", nil)
	req.Header.Set("Authorization", "Bearer tok")
	buf := util.NewBufferingResponseWriter()

	err := p.Forward(buf, req, route)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, buf.StatusCode)
	assert.Equal(t, "created", string(buf.Body()))
	assert.Equal(t, "products", buf.Header().Get("X-Backend"))
}

func TestProxy_ForwardStripsHopHeaders(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Proxy-Authorization"))
		assert.Empty(t, r.Header.Get("Keep-Alive"))
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	p := New()
	route := config.Route{Name: "products", Prefix: "/api/v1/products", Backend: backend.URL}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Proxy-Authorization", "secret")
	req.Header.Set("Keep-Alive", "timeout=5")

	err := p.Forward(util.NewBufferingResponseWriter(), req, route)
	require.NoError(t, err)
}

func TestProxy_TransportErrorReturnsWithoutWriting(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	backend.Close() // connection refused from here on

	p := New()
	route := config.Route{Name: "products", Prefix: "/api/v1/products", Backend: backend.URL}

	buf := util.NewBufferingResponseWriter()
	err := p.Forward(buf, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil), route)

	require.Error(t, err)
	assert.Empty(t, buf.Body(), "a failed forward must leave the response untouched")
}

func TestProxy_BackendTimeout(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer backend.Close()

	p := New()
	route := config.Route{
		Name:    "products",
		Prefix:  "/api/v1/products",
		Backend: backend.URL,
		Timeout: config.Duration(50 * time.Millisecond),
	}

	start := time.Now()
	err := p.Forward(util.NewBufferingResponseWriter(), httptest.NewRequest(http.MethodGet, "/api/v1/products", nil), route)

	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "timeout must bound the call")
}

func TestProxy_InvalidBackendURL(t *testing.T) {
	p := New()
	route := config.Route{Name: "bad", Prefix: "/bad", Backend: "://not-a-url"}

	err := p.Forward(util.NewBufferingResponseWriter(), httptest.NewRequest(http.MethodGet, "/bad", nil), route)
	assert.Error(t, err)
}
