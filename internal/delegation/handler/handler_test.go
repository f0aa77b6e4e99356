package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "authrelay/pkg/domain"
	auditpublisher "authrelay/pkg/platform/audit/publisher"
	auditmem "authrelay/pkg/platform/audit/store/memory"
	request "authrelay/pkg/platform/middleware/request"
	requesttime "authrelay/pkg/platform/middleware/requesttime"

	"authrelay/internal/delegation/config"
	mw "authrelay/internal/delegation/middleware"
	"authrelay/internal/delegation/models"
	"authrelay/internal/delegation/secrets"
	"authrelay/internal/delegation/service"
	credstore "authrelay/internal/delegation/store/credential"
	failstore "authrelay/internal/delegation/store/failure"
	userstore "authrelay/internal/delegation/store/user"
	"authrelay/internal/granttoken"
)

// HandlerSuite runs the delegation endpoints through the full middleware
// chain with in-memory stores, the same wiring the server uses.
type HandlerSuite struct {
	suite.Suite
	router   chi.Router
	cfg      *config.Config
	users    *userstore.InMemoryStore
	failures *failstore.InMemoryStore
	tokens   *granttoken.Service

	cred   *models.Credential
	apiKey string
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.Default()
	creds := credstore.New()
	s.users = userstore.New()
	s.failures = failstore.NewInMemoryStore()

	var err error
	s.cfg, err = config.New(config.Tunables{FailureThreshold: 3, FailureWindow: time.Minute})
	s.Require().NoError(err)

	// Synchronous publisher over the memory store so the audit trail is
	// visible to assertions immediately.
	publisher := auditpublisher.NewPublisher(auditmem.NewInMemoryStore())

	orchestrator, err := service.New(s.users, s.failures,
		service.WithConfig(s.cfg),
		service.WithAuditPublisher(publisher),
	)
	s.Require().NoError(err)

	s.tokens = granttoken.NewService("test-signing-key", "authrelay-test", time.Hour)
	h := New(s.tokens, s.cfg, s.failures, logger, publisher, publisher)

	r := chi.NewRouter()
	r.Use(request.Middleware)
	r.Use(requesttime.Middleware)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(creds, logger))
		r.Use(mw.Delegate(orchestrator, logger))
		h.Register(r)
	})
	h.RegisterAdmin(r)
	s.router = r

	secret, err := secrets.Generate()
	s.Require().NoError(err)
	hash, err := secrets.Hash(secret)
	s.Require().NoError(err)

	s.cred, err = models.NewCredential(
		id.CredentialID(uuid.New()), "reporting-service",
		[]models.Permission{models.PermRequirementsRead, models.PermRequirementsWrite},
		true, []string{"@co.com"},
	)
	s.Require().NoError(err)
	s.cred.SecretHash = hash
	s.Require().NoError(creds.Save(context.Background(), s.cred))
	s.apiKey = s.cred.ID.String() + "." + secret
}

func (s *HandlerSuite) seedUser(email string, roles []models.Role, active bool) id.UserID {
	userID := id.UserID(uuid.New())
	s.Require().NoError(s.users.Save(context.Background(), &models.Identity{
		ID:     userID,
		Email:  email,
		Roles:  roles,
		Active: active,
	}))
	return userID
}

func (s *HandlerSuite) authorize(delegateUser string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/authorize", nil)
	req.Header.Set(mw.HeaderAPIKey, s.apiKey)
	if delegateUser != "" {
		req.Header.Set(mw.HeaderDelegateUser, delegateUser)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestAuthorizeDelegatedGrant() {
	userID := s.seedUser("u@co.com", []models.Role{models.RoleUser}, true)

	rec := s.authorize("u@co.com")
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp AuthorizeResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.True(resp.Delegated)
	s.Equal(userID.String(), resp.DelegatedUser)
	// USER role implies requirements:read but not requirements:write; the
	// intersection drops the write half of the credential's set.
	s.Equal([]string{"requirements:read"}, resp.Permissions)

	claims, err := s.tokens.Validate(resp.GrantToken)
	s.Require().NoError(err)
	s.Equal(s.cred.ID.String(), claims.CredentialID)
	s.Equal("u@co.com", claims.DelegatedEmail)
}

func (s *HandlerSuite) TestAuthorizeFallbackWithoutHint() {
	rec := s.authorize("")
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp AuthorizeResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.False(resp.Delegated)
	s.Empty(resp.DelegatedUser)
	s.ElementsMatch([]string{"requirements:read", "requirements:write"}, resp.Permissions)
}

func (s *HandlerSuite) TestAuthorizeRejectsForeignDomain() {
	rec := s.authorize("u@other.com")
	s.Require().Equal(http.StatusForbidden, rec.Code)
	s.Contains(rec.Body.String(), "domain_not_allowed")
	s.NotContains(rec.Body.String(), "@co.com")
}

func (s *HandlerSuite) TestAuthorizeRejectsMalformedHint() {
	rec := s.authorize("not-an-email")
	s.Require().Equal(http.StatusBadRequest, rec.Code)
	s.Contains(rec.Body.String(), "invalid_email_format")
}

func (s *HandlerSuite) TestAuthorizeRejectsInactiveUser() {
	s.seedUser("gone@co.com", []models.Role{models.RoleAdmin}, false)

	rec := s.authorize("gone@co.com")
	s.Require().Equal(http.StatusForbidden, rec.Code)
	s.Contains(rec.Body.String(), "user_inactive")
}

func (s *HandlerSuite) TestAuthorizeRejectsUnknownUser() {
	rec := s.authorize("ghost@co.com")
	s.Require().Equal(http.StatusForbidden, rec.Code)
	s.Contains(rec.Body.String(), "user_not_found")
}

func (s *HandlerSuite) TestConfigRoundTrip() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/delegation/config", nil))
	s.Require().Equal(http.StatusOK, rec.Code)

	var got ConfigResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Equal(3, got.FailureThreshold)
	s.Equal(60, got.FailureWindowSeconds)

	body := strings.NewReader(`{"failure_threshold": 5, "failure_window_seconds": 120}`)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/delegation/config", body))
	s.Require().Equal(http.StatusOK, rec.Code)

	t := s.cfg.Snapshot()
	s.Equal(5, t.FailureThreshold)
	s.Equal(2*time.Minute, t.FailureWindow)
}

func (s *HandlerSuite) TestConfigUpdateRejectsInvalidTunables() {
	body := strings.NewReader(`{"failure_threshold": 0, "failure_window_seconds": 60}`)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/delegation/config", body))
	s.Require().Equal(http.StatusBadRequest, rec.Code)

	// Unchanged.
	s.Equal(3, s.cfg.Snapshot().FailureThreshold)
}

func (s *HandlerSuite) TestFailureCountEndpoint() {
	// Two rejected delegations leave two failures in the window.
	s.authorize("u@other.com")
	s.authorize("v@other.com")

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/delegation/failures/"+s.cred.ID.String(), nil))
	s.Require().Equal(http.StatusOK, rec.Code)

	var got FailuresResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Equal(2, got.FailuresInWindow)
	s.Equal(3, got.FailureThreshold)
}

func (s *HandlerSuite) TestFailureCountRejectsBadID() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/delegation/failures/not-a-uuid", nil))
	s.Require().Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestAuditTrailEndpoint() {
	s.seedUser("u@co.com", []models.Role{models.RoleUser}, true)
	s.authorize("u@co.com")
	s.authorize("mallory@other.com")

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/delegation/audit/"+s.cred.ID.String(), nil))
	s.Require().Equal(http.StatusOK, rec.Code)

	var got AuditEventsResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Equal(s.cred.ID.String(), got.CredentialID)
	s.Require().Len(got.Events, 2)

	s.Equal("delegation_granted", got.Events[0].Action)
	s.Equal("u@co.com", got.Events[0].DelegatedEmail)

	s.Equal("delegation_rejected", got.Events[1].Action)
	s.Equal("domain_not_allowed", got.Events[1].Reason)
	s.Equal("mallory@other.com", got.Events[1].DelegatedEmail)
}

func (s *HandlerSuite) TestAuditTrailEmptyForUnknownCredential() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/delegation/audit/"+uuid.NewString(), nil))
	s.Require().Equal(http.StatusOK, rec.Code)

	var got AuditEventsResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Empty(got.Events)
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func TestHandlerWithoutMiddlewareChain(t *testing.T) {
	cfg, err := config.New(config.Defaults())
	require.NoError(t, err)
	h := New(granttoken.NewService("k", "i", time.Hour), cfg, failstore.NewInMemoryStore(), slog.Default(), nil, nil)

	rec := httptest.NewRecorder()
	h.HandleAuthorize(rec, httptest.NewRequest(http.MethodPost, "/v1/authorize", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
