// Package handler wires the delegation endpoints: the authorize entry point
// for calling services and the admin surface for runtime tunables and
// failure-window inspection.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	id "authrelay/pkg/domain"
	dErrors "authrelay/pkg/domain-errors"
	"authrelay/pkg/platform/audit"
	"authrelay/pkg/platform/httputil"
	"authrelay/pkg/requestcontext"

	"authrelay/internal/delegation/config"
	mw "authrelay/internal/delegation/middleware"
	"authrelay/internal/delegation/ports"
	"authrelay/internal/granttoken"
)

// Handler wires delegation endpoints to the orchestrator and its stores.
type Handler struct {
	tokens   *granttoken.Service
	config   *config.Config
	failures ports.FailureStore
	logger   *slog.Logger

	auditPublisher ports.AuditPublisher
	audits         ports.AuditLister
}

// New constructs a delegation handler with its dependencies.
func New(tokens *granttoken.Service, cfg *config.Config, failures ports.FailureStore, logger *slog.Logger, publisher ports.AuditPublisher, audits ports.AuditLister) *Handler {
	return &Handler{
		tokens:         tokens,
		config:         cfg,
		failures:       failures,
		logger:         logger,
		auditPublisher: publisher,
		audits:         audits,
	}
}

// Register mounts the authorize endpoint. The router must already carry the
// Authenticate and Delegate middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/authorize", h.HandleAuthorize)
}

// RegisterAdmin mounts the admin endpoints. The router must already carry
// the admin-token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/delegation/config", h.HandleGetConfig)
	r.Put("/admin/delegation/config", h.HandleUpdateConfig)
	r.Get("/admin/delegation/failures/{credentialID}", h.HandleGetFailures)
	r.Get("/admin/delegation/audit/{credentialID}", h.HandleListAudit)
}

// AuthorizeResponse is the wire form of a computed grant.
type AuthorizeResponse struct {
	Permissions   []string `json:"permissions"`
	Delegated     bool     `json:"delegated"`
	DelegatedUser string   `json:"delegated_user_id,omitempty"`
	GrantToken    string   `json:"grant_token"`
}

// HandleAuthorize handles POST /v1/authorize. The delegation middleware has
// already computed the grant; this endpoint serializes it and issues the
// grant token for downstream verification.
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	cred := mw.CredentialFromContext(ctx)
	grant := mw.GrantFromContext(ctx)
	if cred == nil || grant == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "misconfigured middleware chain"))
		return
	}

	token, err := h.tokens.Issue(cred.ID, grant, requestcontext.Now(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue grant token",
			"request_id", requestID,
			"credential_id", cred.ID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := AuthorizeResponse{
		Permissions: make([]string, 0, len(grant.Permissions)),
		Delegated:   grant.Delegated,
		GrantToken:  token,
	}
	for _, p := range grant.Permissions {
		resp.Permissions = append(resp.Permissions, string(p))
	}
	if grant.Identity != nil {
		resp.DelegatedUser = grant.Identity.ID.String()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// ConfigResponse is the wire form of the failure-tracker tunables.
type ConfigResponse struct {
	FailureThreshold     int `json:"failure_threshold"`
	FailureWindowSeconds int `json:"failure_window_seconds"`
}

// HandleGetConfig handles GET /admin/delegation/config.
func (h *Handler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	t := h.config.Snapshot()
	httputil.WriteJSON(w, http.StatusOK, ConfigResponse{
		FailureThreshold:     t.FailureThreshold,
		FailureWindowSeconds: int(t.FailureWindow / time.Second),
	})
}

// UpdateConfigRequest carries new tunables. Both fields are required so a
// partial update cannot silently zero the other value.
type UpdateConfigRequest struct {
	FailureThreshold     int `json:"failure_threshold"`
	FailureWindowSeconds int `json:"failure_window_seconds"`
}

// HandleUpdateConfig handles PUT /admin/delegation/config. Changes take
// effect immediately without a restart.
func (h *Handler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[UpdateConfigRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	tunables := config.Tunables{
		FailureThreshold: req.FailureThreshold,
		FailureWindow:    time.Duration(req.FailureWindowSeconds) * time.Second,
	}
	if err := h.config.Update(tunables); err != nil {
		httputil.WriteError(w, err)
		return
	}

	ports.LogAudit(ctx, h.logger, h.auditPublisher, audit.Event{
		Action:   string(audit.EventTunablesUpdated),
		Decision: "allowed",
	},
		"failure_threshold", tunables.FailureThreshold,
		"failure_window", tunables.FailureWindow,
	)

	httputil.WriteJSON(w, http.StatusOK, ConfigResponse{
		FailureThreshold:     tunables.FailureThreshold,
		FailureWindowSeconds: req.FailureWindowSeconds,
	})
}

// FailuresResponse reports the live in-window failure count for a credential.
type FailuresResponse struct {
	CredentialID     string `json:"credential_id"`
	FailuresInWindow int    `json:"failures_in_window"`
	FailureThreshold int    `json:"failure_threshold"`
}

// HandleGetFailures handles GET /admin/delegation/failures/{credentialID}.
func (h *Handler) HandleGetFailures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	credID, err := id.ParseCredentialID(chi.URLParam(r, "credentialID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	t := h.config.Snapshot()
	count, err := h.failures.CountInWindow(ctx, credID, requestcontext.Now(ctx), t.FailureWindow)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to count failures",
			"credential_id", credID.String(),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "count failures"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FailuresResponse{
		CredentialID:     credID.String(),
		FailuresInWindow: count,
		FailureThreshold: t.FailureThreshold,
	})
}

// AuditEventView is the wire form of one recorded audit event.
type AuditEventView struct {
	Category        string    `json:"category"`
	Timestamp       time.Time `json:"timestamp"`
	Action          string    `json:"action"`
	Operation       string    `json:"operation,omitempty"`
	Decision        string    `json:"decision,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	DelegatedEmail  string    `json:"delegated_email,omitempty"`
	DelegatedUserID string    `json:"delegated_user_id,omitempty"`
	RequestID       string    `json:"request_id,omitempty"`
	ClientIP        string    `json:"client_ip,omitempty"`
	UserAgent       string    `json:"user_agent,omitempty"`
}

// AuditEventsResponse lists the recorded audit trail for a credential.
type AuditEventsResponse struct {
	CredentialID string           `json:"credential_id"`
	Events       []AuditEventView `json:"events"`
}

// HandleListAudit handles GET /admin/delegation/audit/{credentialID}.
func (h *Handler) HandleListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	credID, err := id.ParseCredentialID(chi.URLParam(r, "credentialID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.audits.List(ctx, credID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"credential_id", credID.String(),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "list audit events"))
		return
	}

	resp := AuditEventsResponse{
		CredentialID: credID.String(),
		Events:       make([]AuditEventView, 0, len(events)),
	}
	for _, event := range events {
		view := AuditEventView{
			Category:       string(event.Category),
			Timestamp:      event.Timestamp,
			Action:         event.Action,
			Operation:      event.Operation,
			Decision:       event.Decision,
			Reason:         event.Reason,
			DelegatedEmail: event.DelegatedEmail,
			RequestID:      event.RequestID,
			ClientIP:       event.ClientIP,
			UserAgent:      event.UserAgent,
		}
		if !event.DelegatedUserID.IsNil() {
			view.DelegatedUserID = event.DelegatedUserID.String()
		}
		resp.Events = append(resp.Events, view)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
