// Package middleware carries the delegation request chain: API-key
// authentication, delegated-identity resolution, and per-operation
// permission checks.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "authrelay/pkg/domain"
	dErrors "authrelay/pkg/domain-errors"
	"authrelay/pkg/platform/httputil"
	"authrelay/pkg/requestcontext"

	"authrelay/internal/delegation/models"
	"authrelay/internal/delegation/ports"
	"authrelay/internal/delegation/secrets"
)

const (
	// HeaderAPIKey carries "<credential-id>.<secret>".
	HeaderAPIKey = "X-API-Key"
	// HeaderDelegateUser carries the optional delegated-identity hint.
	HeaderDelegateUser = "X-Delegate-User"
)

type contextKeyCredential struct{}
type contextKeyGrant struct{}

// CredentialFromContext returns the authenticated credential, nil outside
// the Authenticate middleware.
func CredentialFromContext(ctx context.Context) *models.Credential {
	cred, _ := ctx.Value(contextKeyCredential{}).(*models.Credential)
	return cred
}

// GrantFromContext returns the effective grant, nil outside the Delegate
// middleware.
func GrantFromContext(ctx context.Context) *models.Grant {
	grant, _ := ctx.Value(contextKeyGrant{}).(*models.Grant)
	return grant
}

// Authorizer matches the orchestrator's Authorize method.
type Authorizer interface {
	Authorize(ctx context.Context, cred *models.Credential, delegateEmail string) (*models.Grant, error)
}

// Authenticate validates the X-API-Key header against the credential store
// and stashes the credential in the request context. The key format is
// "<credential-id>.<secret>"; lookup and verification failures are reported
// identically so credential ids cannot be probed.
func Authenticate(store ports.CredentialStore, logger *slog.Logger) func(http.Handler) http.Handler {
	unauthorized := dErrors.New(dErrors.CodeUnauthorized, "invalid api key")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			rawKey := r.Header.Get(HeaderAPIKey)
			credID, secret, ok := splitKey(rawKey)
			if !ok {
				logger.WarnContext(ctx, "missing or malformed api key")
				httputil.WriteError(w, unauthorized)
				return
			}

			cred, err := store.Get(ctx, credID)
			if err != nil {
				logger.WarnContext(ctx, "api key lookup failed", "credential_id", credID.String(), "error", err)
				httputil.WriteError(w, unauthorized)
				return
			}
			if err := secrets.Verify(secret, cred.SecretHash); err != nil {
				logger.WarnContext(ctx, "api key secret mismatch", "credential_id", credID.String())
				httputil.WriteError(w, unauthorized)
				return
			}

			ctx = requestcontext.WithCredentialID(ctx, cred.ID)
			ctx = context.WithValue(ctx, contextKeyCredential{}, cred)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func splitKey(raw string) (id.CredentialID, string, bool) {
	raw = strings.TrimSpace(raw)
	dot := strings.IndexByte(raw, '.')
	if dot <= 0 || dot == len(raw)-1 {
		return id.CredentialID{}, "", false
	}
	credID, err := id.ParseCredentialID(raw[:dot])
	if err != nil {
		return id.CredentialID{}, "", false
	}
	return credID, raw[dot+1:], true
}

// Delegate runs the delegation orchestrator for the authenticated credential
// and the optional X-Delegate-User header, stashing the resulting grant.
// Must be mounted after Authenticate.
func Delegate(authorizer Authorizer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			cred := CredentialFromContext(ctx)
			if cred == nil {
				logger.ErrorContext(ctx, "delegate middleware mounted without authentication")
				httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "misconfigured middleware chain"))
				return
			}

			hint := r.Header.Get(HeaderDelegateUser)
			if hint != "" {
				ctx = requestcontext.WithDelegatedEmail(ctx, hint)
			}

			grant, err := authorizer.Authorize(ctx, cred, hint)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}

			ctx = context.WithValue(ctx, contextKeyGrant{}, grant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission gates a route on the effective grant. Must be mounted
// after Delegate.
func RequirePermission(perm models.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			grant := GrantFromContext(r.Context())
			if grant == nil || !models.HasPermission(grant.Permissions, perm) {
				httputil.WriteError(w, dErrors.Newf(dErrors.CodeForbidden, "operation requires %s", perm))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
