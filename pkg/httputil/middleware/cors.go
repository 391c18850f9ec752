package middleware

import (
	"net/http"
	"strings"
)

// CORSOptions defines configuration for CORS.
type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
}

// DefaultCORSOptions allow read access from any origin.
func DefaultCORSOptions() *CORSOptions {
	return &CORSOptions{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Accept", "Accept-Encoding", "Origin", "Cache-Control", "X-Requested-With", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
	}
}

// CORSWithOptions creates a CORS middleware. A nil options uses DefaultCORSOptions; an empty
// CORSOptions sets no headers.
func CORSWithOptions(options *CORSOptions) func(http.Handler) http.Handler {
	if options == nil {
		options = DefaultCORSOptions()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if len(options.AllowedOrigins) > 0 {
				h.Set("Access-Control-Allow-Origin", strings.Join(options.AllowedOrigins, ","))
			}
			if len(options.AllowedMethods) > 0 {
				h.Set("Access-Control-Allow-Methods", strings.Join(options.AllowedMethods, ","))
			}
			if len(options.AllowedHeaders) > 0 {
				h.Set("Access-Control-Allow-Headers", strings.Join(options.AllowedHeaders, ","))
			}
			if len(options.ExposedHeaders) > 0 {
				h.Set("Access-Control-Expose-Headers", strings.Join(options.ExposedHeaders, ","))
			}
			if options.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			// preflight
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
