// Package service implements the delegation orchestrator: the single entry
// point the request layer calls to turn a credential plus an optional
// delegated-identity hint into an effective permission grant.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	dErrors "authrelay/pkg/domain-errors"
	"authrelay/pkg/email"
	"authrelay/pkg/platform/audit"
	"authrelay/pkg/platform/middleware/metadata"
	"authrelay/pkg/platform/sentinel"
	"authrelay/pkg/requestcontext"

	"authrelay/internal/delegation/config"
	"authrelay/internal/delegation/metrics"
	"authrelay/internal/delegation/models"
	"authrelay/internal/delegation/ports"
)

const (
	outcomeGranted  = "granted"
	outcomeFallback = "fallback"
	outcomeRejected = "rejected"
)

// Orchestrator ties domain validation, identity resolution, permission
// composition, failure tracking, and auditing into one Authorize call.
// It is stateless between calls and safe for concurrent use.
type Orchestrator struct {
	resolver       ports.IdentityResolver
	failures       ports.FailureStore
	auditPublisher ports.AuditPublisher
	alertSink      ports.AlertSink
	metrics        *metrics.Metrics
	config         *config.Config
	logger         *slog.Logger
	tracer         trace.Tracer
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(o *Orchestrator) {
		o.auditPublisher = publisher
	}
}

func WithAlertSink(sink ports.AlertSink) Option {
	return func(o *Orchestrator) {
		o.alertSink = sink
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithConfig(cfg *config.Config) Option {
	return func(o *Orchestrator) {
		o.config = cfg
	}
}

func New(resolver ports.IdentityResolver, failures ports.FailureStore, opts ...Option) (*Orchestrator, error) {
	if resolver == nil {
		return nil, errors.New("identity resolver is required")
	}
	if failures == nil {
		return nil, errors.New("failure store is required")
	}

	defaults, err := config.New(config.Defaults())
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		resolver: resolver,
		failures: failures,
		config:   defaults,
		tracer:   otel.Tracer("authrelay/delegation"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Authorize resolves the effective permission grant for a credential and an
// optional delegated-identity hint.
//
// With a blank hint, or a credential that has delegation disabled, the grant
// is the credential's own permission set and the hint is ignored. Otherwise
// the hint must be a well-formed email whose domain the credential allows and
// which resolves to an active user; the grant is then the intersection of the
// credential's permissions and the permissions implied by the user's roles.
//
// Failed delegation attempts feed the per-credential failure tracker; the
// tracker and the audit trail are advisory and never change the returned
// outcome.
func (o *Orchestrator) Authorize(ctx context.Context, cred *models.Credential, delegateEmail string) (*models.Grant, error) {
	ctx, span := o.tracer.Start(ctx, "delegation.Authorize", trace.WithAttributes(
		attribute.String("credential.id", cred.ID.String()),
		attribute.Bool("credential.delegation_enabled", cred.DelegationEnabled),
	))
	defer span.End()

	if email.Normalize(delegateEmail) == "" {
		return o.fallback(ctx, cred, "no identity hint"), nil
	}
	if !cred.DelegationEnabled {
		return o.fallback(ctx, cred, "delegation disabled"), nil
	}

	addr, err := email.Parse(delegateEmail)
	if err != nil {
		return nil, o.reject(ctx, cred, delegateEmail, nil,
			dErrors.Wrap(err, dErrors.CodeInvalidEmailFormat, "delegate email is malformed"))
	}

	if !cred.AllowsEmailDomain(addr) {
		// The message confirms that a domain restriction exists but never
		// echoes the allow-list.
		return nil, o.reject(ctx, cred, addr.String(), nil,
			dErrors.New(dErrors.CodeDomainNotAllowed, "delegate email domain is not allowed for this credential"))
	}

	identity, err := o.resolve(ctx, addr.String())
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, o.reject(ctx, cred, addr.String(), nil,
				dErrors.New(dErrors.CodeUserNotFound, "no user matches the delegate email"))
		}
		return nil, o.reject(ctx, cred, addr.String(), nil,
			dErrors.Wrap(err, dErrors.CodeResolutionError, "user store lookup failed"))
	}

	if !identity.Active {
		return nil, o.reject(ctx, cred, addr.String(), identity,
			dErrors.New(dErrors.CodeUserInactive, "delegate user is inactive"))
	}

	grant := &models.Grant{
		Permissions: models.EffectivePermissions(identity.Roles, cred.Permissions),
		Delegated:   true,
		Identity:    identity,
	}
	span.SetAttributes(attribute.Int("grant.permissions", len(grant.Permissions)))
	o.observeOutcome(outcomeGranted)
	o.audit(ctx, audit.Event{
		CredentialID:    cred.ID,
		Action:          string(audit.EventDelegationGranted),
		Decision:        "allowed",
		DelegatedEmail:  identity.Email,
		DelegatedUserID: identity.ID,
	},
		"credential_id", cred.ID.String(),
		"delegated_user_id", identity.ID.String(),
		"effective_permissions", len(grant.Permissions),
	)
	return grant, nil
}

// fallback is the credential-only path: the grant carries the credential's
// own permissions and no delegated identity.
func (o *Orchestrator) fallback(ctx context.Context, cred *models.Credential, why string) *models.Grant {
	o.observeOutcome(outcomeFallback)
	o.audit(ctx, audit.Event{
		CredentialID: cred.ID,
		Action:       string(audit.EventDelegationFallback),
		Decision:     "allowed",
		Reason:       why,
	},
		"credential_id", cred.ID.String(),
		"reason", why,
	)
	return &models.Grant{
		Permissions: cred.Permissions,
		Delegated:   false,
	}
}

// reject records the failure, runs the threshold check, audits the rejection,
// and returns the delegation error unchanged. Tracker and audit problems are
// logged and swallowed so they never mask the authorization outcome.
func (o *Orchestrator) reject(ctx context.Context, cred *models.Credential, delegateEmail string, identity *models.Identity, rejection error) error {
	reason := string(dErrors.CodeOf(rejection))
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("delegation.rejection", reason))

	o.observeOutcome(outcomeRejected)
	if o.metrics != nil {
		o.metrics.ObserveFailure(reason)
	}

	o.trackFailure(ctx, cred, delegateEmail, reason)

	event := audit.Event{
		CredentialID:   cred.ID,
		Action:         string(audit.EventDelegationRejected),
		Decision:       "rejected",
		Reason:         reason,
		DelegatedEmail: delegateEmail,
	}
	if identity != nil {
		event.DelegatedUserID = identity.ID
	}
	o.audit(ctx, event,
		"credential_id", cred.ID.String(),
		"reason", reason,
	)
	return rejection
}

// trackFailure appends to the sliding window and raises the breach alert when
// the in-window count first exceeds the threshold. The store arbitrates the
// once-per-breach claim so concurrent rejections produce a single alert.
func (o *Orchestrator) trackFailure(ctx context.Context, cred *models.Credential, delegateEmail, reason string) {
	now := requestcontext.Now(ctx)
	tunables := o.config.Snapshot()

	count, windowStart, err := o.failures.RecordFailure(ctx, models.FailureRecord{
		CredentialID: cred.ID,
		Timestamp:    now,
		Email:        delegateEmail,
		Reason:       reason,
	}, tunables.FailureWindow)
	if err != nil {
		o.warn(ctx, "failed to record delegation failure", "credential_id", cred.ID.String(), "error", err)
		return
	}
	if count <= tunables.FailureThreshold {
		return
	}

	claimed, err := o.failures.TryMarkAlerted(ctx, cred.ID, now, tunables.FailureWindow)
	if err != nil {
		o.warn(ctx, "failed to claim threshold alert", "credential_id", cred.ID.String(), "error", err)
		return
	}
	if !claimed {
		return
	}

	if o.metrics != nil {
		o.metrics.ObserveThresholdBreach()
	}
	if o.alertSink != nil {
		if err := o.alertSink.Raise(ctx, models.Alert{
			CredentialID:         cred.ID,
			FailureCountInWindow: count,
			WindowStart:          windowStart,
		}); err != nil {
			o.warn(ctx, "failed to raise threshold alert", "credential_id", cred.ID.String(), "error", err)
		}
	}
	o.audit(ctx, audit.Event{
		CredentialID: cred.ID,
		Action:       string(audit.EventThresholdBreached),
		Decision:     "rejected",
		Reason:       reason,
	},
		"credential_id", cred.ID.String(),
		"failures_in_window", count,
		"window_start", windowStart,
	)
}

// resolve wraps the user store call with latency observation.
func (o *Orchestrator) resolve(ctx context.Context, addr string) (*models.Identity, error) {
	start := time.Now()
	identity, err := o.resolver.Resolve(ctx, addr)
	if o.metrics != nil {
		o.metrics.IdentityResolutionSeconds.Observe(time.Since(start).Seconds())
	}
	return identity, err
}

func (o *Orchestrator) observeOutcome(outcome string) {
	if o.metrics != nil {
		o.metrics.ObserveOutcome(outcome)
	}
}

func (o *Orchestrator) audit(ctx context.Context, event audit.Event, attrs ...any) {
	event.ClientIP = requestcontext.ClientIP(ctx)
	event.UserAgent = metadata.ClientDescription(requestcontext.UserAgent(ctx))
	ports.LogAudit(ctx, o.logger, o.auditPublisher, event, attrs...)
}

func (o *Orchestrator) warn(ctx context.Context, msg string, attrs ...any) {
	if o.logger != nil {
		o.logger.WarnContext(ctx, msg, attrs...)
	}
}
