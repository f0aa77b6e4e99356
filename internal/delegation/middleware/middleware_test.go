package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "authrelay/pkg/domain"
	dErrors "authrelay/pkg/domain-errors"

	"authrelay/internal/delegation/models"
	"authrelay/internal/delegation/secrets"
	credstore "authrelay/internal/delegation/store/credential"
)

func seedCredential(t *testing.T, store *credstore.InMemoryStore, delegation bool, domains []string) (*models.Credential, string) {
	t.Helper()

	secret, err := secrets.Generate()
	require.NoError(t, err)
	hash, err := secrets.Hash(secret)
	require.NoError(t, err)

	cred, err := models.NewCredential(
		id.CredentialID(uuid.New()), "test-service",
		[]models.Permission{models.PermRequirementsRead}, delegation, domains,
	)
	require.NoError(t, err)
	cred.SecretHash = hash
	require.NoError(t, store.Save(context.Background(), cred))

	return cred, cred.ID.String() + "." + secret
}

func okHandler(hit *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*hit = true
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthenticatePassesValidKey(t *testing.T) {
	store := credstore.New()
	cred, apiKey := seedCredential(t, store, false, nil)

	var seen *models.Credential
	handler := Authenticate(store, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CredentialFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderAPIKey, apiKey)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, cred.ID, seen.ID)
}

func TestAuthenticateRejections(t *testing.T) {
	store := credstore.New()
	_, apiKey := seedCredential(t, store, false, nil)

	var hit bool
	handler := Authenticate(store, slog.Default())(okHandler(&hit))

	for name, key := range map[string]string{
		"missing key":    "",
		"no separator":   "justonetoken",
		"bad id":         "not-a-uuid.secret",
		"unknown id":     uuid.NewString() + ".secret",
		"wrong secret":   apiKey[:len(apiKey)-4] + "XXXX",
		"empty secret":   uuid.NewString() + ".",
		"id only prefix": "." + apiKey,
	} {
		t.Run(name, func(t *testing.T) {
			hit = false
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if key != "" {
				req.Header.Set(HeaderAPIKey, key)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, hit)
		})
	}
}

type stubAuthorizer struct {
	grant *models.Grant
	err   error

	gotHint string
	calls   int
}

func (s *stubAuthorizer) Authorize(_ context.Context, _ *models.Credential, hint string) (*models.Grant, error) {
	s.calls++
	s.gotHint = hint
	return s.grant, s.err
}

func withCredential(cred *models.Credential, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), contextKeyCredential{}, cred)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func TestDelegatePassesGrantDownstream(t *testing.T) {
	cred := &models.Credential{ID: id.CredentialID(uuid.New())}
	authorizer := &stubAuthorizer{grant: &models.Grant{
		Permissions: []models.Permission{models.PermRequirementsRead},
		Delegated:   true,
	}}

	var seen *models.Grant
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GrantFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := withCredential(cred, Delegate(authorizer, slog.Default())(inner))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderDelegateUser, "alice@corp.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "alice@corp.example.com", authorizer.gotHint)
	require.NotNil(t, seen)
	assert.True(t, seen.Delegated)
}

func TestDelegateTranslatesRejection(t *testing.T) {
	cred := &models.Credential{ID: id.CredentialID(uuid.New())}
	authorizer := &stubAuthorizer{err: dErrors.New(dErrors.CodeDomainNotAllowed, "delegate email domain is not allowed for this credential")}

	var hit bool
	handler := withCredential(cred, Delegate(authorizer, slog.Default())(okHandler(&hit)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderDelegateUser, "u@other.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, hit)
	assert.Contains(t, rec.Body.String(), "domain_not_allowed")
}

func TestDelegateWithoutAuthenticationIsServerError(t *testing.T) {
	authorizer := &stubAuthorizer{}

	var hit bool
	handler := Delegate(authorizer, slog.Default())(okHandler(&hit))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Zero(t, authorizer.calls)
	assert.False(t, hit)
}

func TestRequirePermission(t *testing.T) {
	grant := &models.Grant{Permissions: []models.Permission{models.PermRequirementsRead}}
	withGrant := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), contextKeyGrant{}, grant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}

	t.Run("granted permission passes", func(t *testing.T) {
		var hit bool
		handler := withGrant(RequirePermission(models.PermRequirementsRead)(okHandler(&hit)))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.True(t, hit)
	})

	t.Run("missing permission is forbidden", func(t *testing.T) {
		var hit bool
		handler := withGrant(RequirePermission(models.PermRequirementsWrite)(okHandler(&hit)))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.False(t, hit)
	})

	t.Run("no grant is forbidden", func(t *testing.T) {
		var hit bool
		handler := RequirePermission(models.PermRequirementsRead)(okHandler(&hit))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.False(t, hit)
	})
}
