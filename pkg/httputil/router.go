package httputil

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Middleware wraps an http.Handler to modify or enhance its behavior.
type Middleware func(http.Handler) http.Handler

// RouterOptions configure a Router.
type RouterOptions func(*Router)

// Router is a thin layer over http.ServeMux adding middleware, route groups and graceful
// shutdown.
type Router struct {
	mux        *http.ServeMux
	server     *http.Server
	prefix     string
	middleware []Middleware
	routes     *routeTable
	logger     *zap.Logger
	tlsErr     error
	mu         sync.RWMutex
}

// routeTable is shared by a router and its groups.
type routeTable struct {
	mu       sync.Mutex
	patterns []string
}

func NewRouter(opts ...RouterOptions) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		server: &http.Server{},
		routes: &routeTable{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithServerOptions applies custom http.Server options.
func WithServerOptions(opts ...func(*http.Server)) RouterOptions {
	return func(r *Router) {
		for _, opt := range opts {
			opt(r.server)
		}
	}
}

func WithLogger(logger *zap.Logger) RouterOptions {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithTLS enables HTTPS with the given key pair, or with an in-memory self-signed certificate
// when either path is empty. Loading errors are returned by ListenAndServe.
func WithTLS(certFile, keyFile string) RouterOptions {
	return func(r *Router) {
		cert, err := LoadOrGenerateCert(certFile, keyFile)
		if err != nil {
			r.tlsErr = err
			return
		}
		r.server.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
	}
}

// Use adds middleware, applied in the order they are added.
func (r *Router) Use(mw Middleware, additional ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
	r.middleware = append(r.middleware, additional...)
}

// Group creates a sub-router with a path prefix. It inherits the middleware of its parent at
// the time of the call.
func (r *Router) Group(prefix string) *Router {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &Router{
		mux:        r.mux,
		middleware: slices.Clone(r.middleware),
		server:     r.server,
		prefix:     r.prefix + prefix,
		routes:     r.routes,
		logger:     r.logger,
	}
}

// Handle registers handler for a Go 1.22 `METHOD /pattern`. On a group with a /prefix the
// pattern resolves to `METHOD /prefix/pattern`. It panics on a pattern without a method, like
// http.ServeMux does on invalid patterns.
func (r *Router) Handle(methodPattern string, handler http.Handler) {
	method, pattern, ok := strings.Cut(methodPattern, " ")
	if !ok {
		panic(fmt.Sprintf("httputil: invalid method pattern %q", methodPattern))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	final := handler
	for i := len(r.middleware) - 1; i >= 0; i-- {
		final = r.middleware[i](final)
	}
	full := fmt.Sprintf("%s %s%s", method, r.prefix, pattern)
	r.mux.Handle(full, final)

	r.routes.mu.Lock()
	r.routes.patterns = append(r.routes.patterns, full)
	r.routes.mu.Unlock()
}

// Routes returns every registered pattern in registration order.
func (r *Router) Routes() []string {
	r.routes.mu.Lock()
	defer r.routes.mu.Unlock()
	return slices.Clone(r.routes.patterns)
}

// ServeHTTP dispatches to the registered routes. Middleware is bound to each route when it is
// registered, so Use must come before Handle.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// ListenAndServe starts the server, over HTTPS when TLS is configured.
func (r *Router) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return r.Serve(ln)
}

// Serve accepts connections on ln. It returns http.ErrServerClosed after Shutdown.
func (r *Router) Serve(ln net.Listener) error {
	if r.tlsErr != nil {
		ln.Close()
		return r.tlsErr
	}

	r.server.Addr = ln.Addr().String()
	r.server.Handler = r.mux

	if r.server.TLSConfig != nil {
		r.logger.Info("starting server", zap.String("addr", r.server.Addr), zap.Bool("tls", true))
		return r.server.ServeTLS(ln, "", "")
	}
	r.logger.Info("starting server", zap.String("addr", r.server.Addr))
	return r.server.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (r *Router) Shutdown(ctx context.Context) error {
	r.logger.Info("shutting down server")
	if err := r.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
