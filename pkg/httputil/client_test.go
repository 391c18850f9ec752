package httputil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		switch r.URL.Path {
		case "/flaky":
			if n < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("finally"))
		case "/missing":
			http.NotFound(w, r)
		case "/echo":
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "yes", r.Header.Get("X-Test"))
			JSON(w, http.StatusCreated, body)
		}
	}))
	defer srv.Close()

	config := func(method, path string) RequestConfig {
		c := DefaultRequestConfig(method, srv.URL+path)
		c.InitialBackoff = time.Millisecond
		c.MaxBackoff = 5 * time.Millisecond
		return c
	}

	t.Run("retries server errors", func(t *testing.T) {
		calls.Store(0)
		resp, err := Request(context.Background(), config(http.MethodGet, "/flaky"), nil)
		require.NoError(t, err)
		assert.Equal(t, "finally", string(resp.Body))
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		calls.Store(0)
		resp, err := Request(context.Background(), config(http.MethodGet, "/missing"), nil)
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls.Store(0)
		c := config(http.MethodGet, "/flaky")
		c.MaxRetries = 1
		_, err := Request(context.Background(), c, nil)
		assert.ErrorContains(t, err, "unexpected status code: 503")
		assert.EqualValues(t, 2, calls.Load())
	})

	t.Run("sends a json payload", func(t *testing.T) {
		c := config(http.MethodPost, "/echo")
		c.Headers = map[string][]string{"X-Test": {"yes"}}
		c.RetryEnabled = false
		resp, err := Request(context.Background(), c, map[string]any{"a": 1})
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.JSONEq(t, `{"a": 1}`, string(resp.Body))
	})
}
