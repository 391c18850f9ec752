package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/edgeflare/magicapi/pkg/httputil"
	"github.com/edgeflare/magicapi/pkg/httputil/middleware"
	"go.uber.org/zap"
)

// DefaultShutdownTimeout bounds the graceful shutdown of a Server.
const DefaultShutdownTimeout = 10 * time.Second

// Server serves the resources of a ResourcesMaker with request ids, access logs and CORS.
type Server struct {
	router          *httputil.Router
	resources       *ResourcesMaker
	logger          *zap.Logger
	shutdownTimeout time.Duration
}

type serverConfig struct {
	logger          *zap.Logger
	cors            *middleware.CORSOptions
	noCORS          bool
	routerOpts      []httputil.RouterOptions
	shutdownTimeout time.Duration
}

type ServerOption func(*serverConfig)

func WithServerLogger(logger *zap.Logger) ServerOption {
	return func(c *serverConfig) {
		c.logger = logger
	}
}

// WithCORS replaces the default CORS policy, which allows GET from any origin.
func WithCORS(opts *middleware.CORSOptions) ServerOption {
	return func(c *serverConfig) {
		c.cors = opts
	}
}

func WithoutCORS() ServerOption {
	return func(c *serverConfig) {
		c.noCORS = true
	}
}

// WithTLS serves HTTPS with the given key pair, or a self-signed certificate when both are empty.
func WithTLS(certFile, keyFile string) ServerOption {
	return func(c *serverConfig) {
		c.routerOpts = append(c.routerOpts, httputil.WithTLS(certFile, keyFile))
	}
}

func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(c *serverConfig) {
		if d > 0 {
			c.shutdownTimeout = d
		}
	}
}

// NewServer registers the health check and every resource of rm on a new router. It fails if
// the resources cannot be built, before anything is served.
func NewServer(rm *ResourcesMaker, opts ...ServerOption) (*Server, error) {
	c := &serverConfig{logger: zap.NewNop(), shutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(c)
	}

	router := httputil.NewRouter(append([]httputil.RouterOptions{httputil.WithLogger(c.logger)}, c.routerOpts...)...)
	router.Use(middleware.RequestID, middleware.LoggerWithOptions(&middleware.LoggerOptions{Logger: c.logger}))
	if !c.noCORS {
		router.Use(middleware.CORSWithOptions(c.cors))
	}

	router.Handle("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.Text(w, http.StatusOK, "ok")
	}))
	if err := rm.Register(router); err != nil {
		return nil, err
	}

	return &Server{
		router:          router,
		resources:       rm,
		logger:          c.logger,
		shutdownTimeout: c.shutdownTimeout,
	}, nil
}

func (s *Server) Router() *httputil.Router { return s.router }

func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr and serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.router.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.router.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Resources() *ResourcesMaker { return s.resources }
