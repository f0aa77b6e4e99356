// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Context keys and getter/setter functions live here for values that are set
// by middleware but consumed by services. The package stays free of net/http
// so services can import it without pulling in transport code.
//
// Usage in services (read values):
//
//	credID := requestcontext.CredentialID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithCredentialID(ctx, credID)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "authrelay/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	credentialIDKey   struct{}
	delegatedEmailKey struct{}
	clientIPKey       struct{}
	userAgentKey      struct{}
	requestIDKey      struct{}
	requestTimeKey    struct{}
)

// Exported context keys for tests that need context.WithValue directly.
var (
	ContextKeyCredentialID   = credentialIDKey{}
	ContextKeyDelegatedEmail = delegatedEmailKey{}
	ContextKeyClientIP       = clientIPKey{}
	ContextKeyUserAgent      = userAgentKey{}
	ContextKeyRequestID      = requestIDKey{}
	ContextKeyRequestTime    = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Credential context
// -----------------------------------------------------------------------------

// CredentialID retrieves the authenticated credential ID from the context.
// Returns the zero value (nil UUID) if not set.
func CredentialID(ctx context.Context) id.CredentialID {
	if credID, ok := ctx.Value(ContextKeyCredentialID).(id.CredentialID); ok {
		return credID
	}
	return id.CredentialID{}
}

// WithCredentialID injects a credential ID into the context.
func WithCredentialID(ctx context.Context, credID id.CredentialID) context.Context {
	return context.WithValue(ctx, ContextKeyCredentialID, credID)
}

// DelegatedEmail retrieves the identity hint asserted by the caller, if any.
func DelegatedEmail(ctx context.Context) string {
	if email, ok := ctx.Value(ContextKeyDelegatedEmail).(string); ok {
		return email
	}
	return ""
}

// WithDelegatedEmail injects the caller-asserted identity hint.
func WithDelegatedEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, ContextKeyDelegatedEmail, email)
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the full middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context. Falls back to
// time.Now() for non-HTTP contexts (workers, tests without injection).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. All window arithmetic in
// the failure tracker reads time through this accessor, which keeps tests
// deterministic.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
