// Package ports defines shared interfaces for the delegation module.
// Interfaces live here when consumed by multiple packages to avoid
// duplication; single-consumer interfaces stay next to their consumer.
package ports

//go:generate mockgen -source=ports.go -destination=../service/mocks/mocks.go -package=mocks

import (
	"context"
	"log/slog"
	"time"

	id "authrelay/pkg/domain"
	"authrelay/pkg/platform/audit"
	request "authrelay/pkg/platform/middleware/request"

	"authrelay/internal/delegation/models"
)

// IdentityResolver looks up a user record by email in the external user
// store. Lookup is case-insensitive. Returns sentinel.ErrNotFound (possibly
// wrapped) when no record matches; any other error is an infrastructure
// failure, which the orchestrator reports as a resolution error.
type IdentityResolver interface {
	Resolve(ctx context.Context, email string) (*models.Identity, error)
}

// CredentialStore provides read access to credential records at request
// time. Writes belong to the admin surface.
type CredentialStore interface {
	Get(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error)
}

// FailureStore accumulates delegation failures per credential in a sliding
// window. Entries older than the window are pruned lazily on each call.
type FailureStore interface {
	// RecordFailure appends a failure and returns the count of failures
	// within the window ending at record.Timestamp, along with the
	// timestamp of the oldest failure still inside the window.
	RecordFailure(ctx context.Context, record models.FailureRecord, window time.Duration) (count int, windowStart time.Time, err error)

	// CountInWindow returns the current in-window failure count without
	// recording anything.
	CountInWindow(ctx context.Context, credentialID id.CredentialID, now time.Time, window time.Duration) (int, error)

	// TryMarkAlerted claims the breach alert for a credential. Returns true
	// for exactly one caller per breach; subsequent calls return false
	// until the suppression period (one window length) has passed.
	TryMarkAlerted(ctx context.Context, credentialID id.CredentialID, now time.Time, window time.Duration) (bool, error)
}

// AuditPublisher emits audit events for security-relevant operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// AuditLister reads back recorded audit events for a credential. Backed by
// the in-memory store directly, or by the audit_events projection the Kafka
// materializer maintains.
type AuditLister interface {
	List(ctx context.Context, credentialID id.CredentialID) ([]audit.Event, error)
}

// AlertSink receives threshold-breach signals. Raising an alert is advisory:
// it never blocks or fails the request that triggered it.
type AlertSink interface {
	Raise(ctx context.Context, alert models.Alert) error
}

// LogAudit is a shared helper for logging audit events across delegation
// services. It logs to the structured logger and emits to the audit
// publisher when both are available.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.Event, attrs ...any) {
	if requestID := request.GetRequestID(ctx); requestID != "" {
		event.RequestID = requestID
		attrs = append(attrs, "request_id", requestID)
	}

	args := append(attrs, "event", event.Action, "log_type", "audit")

	if logger != nil {
		logger.InfoContext(ctx, event.Action, args...)
	}

	if publisher == nil {
		return
	}
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}
