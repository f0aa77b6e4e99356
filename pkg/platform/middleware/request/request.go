// Package request provides request-ID middleware for traceability. Every
// request gets a correlation ID that flows through logs and audit events.
package request

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"authrelay/pkg/requestcontext"
)

// HeaderRequestID is the inbound/outbound correlation header.
const HeaderRequestID = "X-Request-ID"

// Middleware assigns a request ID, honoring one supplied by a trusted proxy.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}

// WithRequestID injects a request ID for tests and workers.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return requestcontext.WithRequestID(ctx, requestID)
}
