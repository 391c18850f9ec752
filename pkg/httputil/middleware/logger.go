package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/edgeflare/magicapi/pkg/httputil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ResponseRecorder wraps http.ResponseWriter to capture the status code.
type ResponseRecorder struct {
	http.ResponseWriter
	StatusCode int
	written    bool
}

func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{ResponseWriter: w, StatusCode: http.StatusOK}
}

func (rr *ResponseRecorder) WriteHeader(statusCode int) {
	if !rr.written {
		rr.StatusCode = statusCode
		rr.written = true
	}
	rr.ResponseWriter.WriteHeader(statusCode)
}

func (rr *ResponseRecorder) Write(b []byte) (int, error) {
	rr.written = true
	return rr.ResponseWriter.Write(b)
}

// LoggerFrom returns the request-scoped logger set by the logger middleware. Without one it
// returns fallback, or the global logger when fallback is nil.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if logger, ok := ctx.Value(httputil.LogEntryCtxKey).(*zap.Logger); ok {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return zap.L()
}

// LoggerOptions configure the logger middleware.
type LoggerOptions struct {
	Logger *zap.Logger
	Format func(reqID string, rec *ResponseRecorder, r *http.Request, latency time.Duration) []zap.Field
}

func defaultFormat(reqID string, rec *ResponseRecorder, r *http.Request, latency time.Duration) []zap.Field {
	return []zap.Field{
		zap.String("req_id", reqID),
		zap.Int("status", rec.StatusCode),
		zap.String("method", r.Method),
		zap.String("host", r.Host),
		zap.String("url", r.URL.String()),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
		zap.Duration("latency", latency),
	}
}

// LoggerWithOptions logs one "response" entry per request and stores a logger carrying the
// request id in the request context. A nil options uses the global zap logger.
func LoggerWithOptions(options *LoggerOptions) func(http.Handler) http.Handler {
	if options == nil {
		options = &LoggerOptions{}
	}
	format := options.Format
	if format == nil {
		format = defaultFormat
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Value(httputil.LogEntryCtxKey).(*zap.Logger); ok {
				next.ServeHTTP(w, r)
				return
			}

			logger := options.Logger
			if logger == nil {
				logger = zap.L()
			}
			reqID, ok := r.Context().Value(httputil.RequestIDCtxKey).(string)
			if !ok {
				reqID = uuid.Nil.String()
			}

			start := time.Now()
			rec := NewResponseRecorder(w)
			ctx := context.WithValue(r.Context(), httputil.LogEntryCtxKey, logger.With(zap.String("req_id", reqID)))
			r = r.WithContext(ctx)

			next.ServeHTTP(rec, r)

			logger.Info("response", format(reqID, rec, r, time.Since(start))...)
		})
	}
}
