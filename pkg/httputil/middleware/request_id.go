package middleware

import (
	"context"
	"net/http"

	"github.com/edgeflare/magicapi/pkg/httputil"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

// RequestID makes sure every request carries an id: the one already in the context, the one
// sent by the client, or a new UUID. The id is echoed in the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, ok := r.Context().Value(httputil.RequestIDCtxKey).(string)
		if !ok || reqID == "" {
			reqID = r.Header.Get(RequestIDHeader)
		}
		if reqID == "" {
			reqID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), httputil.RequestIDCtxKey, reqID)
		w.Header().Set(RequestIDHeader, reqID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
