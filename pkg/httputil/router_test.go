package httputil

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRouterHandle(t *testing.T) {
	r := NewRouter()
	r.Handle("GET /test", http.HandlerFunc(ok))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/test", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	assert.Panics(t, func() { r.Handle("/no-method", http.HandlerFunc(ok)) })
}

func TestRouterMiddleware(t *testing.T) {
	r := NewRouter()
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, req)
			})
		}
	}
	r.Use(mw("first"), mw("second"))
	r.Handle("GET /test", http.HandlerFunc(ok))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestRouterGroup(t *testing.T) {
	r := NewRouter()
	api := r.Group("/api")
	api.Handle("GET /v1/test", http.HandlerFunc(ok))
	r.Handle("GET /healthz", http.HandlerFunc(ok))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []string{"GET /api/v1/test", "GET /healthz"}, r.Routes())
	assert.Equal(t, r.Routes(), api.Routes())
}

func TestRouterServe(t *testing.T) {
	tests := []struct {
		name string
		opts []RouterOptions
		tls  bool
	}{
		{name: "http"},
		{name: "self-signed tls", opts: []RouterOptions{WithTLS("", "")}, tls: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(tt.opts...)
			r.Handle("GET /test", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "hello")
			}))

			ln, err := net.Listen("tcp", "127.0.0.1:0")
			require.NoError(t, err)

			done := make(chan error, 1)
			go func() { done <- r.Serve(ln) }()

			scheme := "http"
			client := &http.Client{Timeout: 5 * time.Second}
			if tt.tls {
				scheme = "https"
				client.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
			}

			resp, err := client.Get(scheme + "://" + ln.Addr().String() + "/test")
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			require.NoError(t, err)
			assert.Equal(t, "hello", string(body))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			require.NoError(t, r.Shutdown(ctx))
			assert.True(t, errors.Is(<-done, http.ErrServerClosed))
		})
	}
}

func TestRouterTLSLoadError(t *testing.T) {
	r := NewRouter(WithTLS("missing.crt", "missing.key"))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorContains(t, r.Serve(ln), "failed to load TLS certificate")
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusNotFound, "no such thing")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message": "no such thing", "code": 404}`, w.Body.String())
}

func BenchmarkRouterServeHTTP(b *testing.B) {
	r := NewRouter()
	r.Handle("GET /test", http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.mux.ServeHTTP(w, req)
	}
}

func BenchmarkRouterServeHTTPConcurrent(b *testing.B) {
	r := NewRouter()
	r.Handle("GET /test", http.HandlerFunc(ok))

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		for pb.Next() {
			r.mux.ServeHTTP(httptest.NewRecorder(), req)
		}
	})
}
