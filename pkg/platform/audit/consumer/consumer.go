// Package consumer materializes audit events from Kafka into the
// audit_events table so the admin surface can read them back. Kafka remains
// the source of truth; this table is a query-side projection.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	id "authrelay/pkg/domain"
	audit "authrelay/pkg/platform/audit"

	"authrelay/internal/platform/kafka"
)

// EventStore persists materialized events. Implemented by the Postgres
// audit store; inserts must be idempotent on the event ID.
type EventStore interface {
	InsertEvent(ctx context.Context, eventID uuid.UUID, event audit.Event) error
}

// Materializer handles audit topic messages. Records are keyed by aggregate
// for partition ordering, so the event ID comes from the payload.
type Materializer struct {
	store  EventStore
	logger *slog.Logger
}

// NewMaterializer creates an audit event materializer.
func NewMaterializer(store EventStore, logger *slog.Logger) *Materializer {
	return &Materializer{store: store, logger: logger}
}

// payload matches the JSON structure the outbox relay publishes.
type payload struct {
	ID              string `json:"ID"`
	Category        string `json:"Category"`
	Timestamp       string `json:"Timestamp"`
	CredentialID    string `json:"CredentialID"`
	Action          string `json:"Action"`
	Operation       string `json:"Operation"`
	Decision        string `json:"Decision"`
	Reason          string `json:"Reason"`
	DelegatedEmail  string `json:"DelegatedEmail"`
	DelegatedUserID string `json:"DelegatedUserID"`
	RequestID       string `json:"RequestID"`
	ClientIP        string `json:"ClientIP"`
	UserAgent       string `json:"UserAgent"`
}

// Handle materializes one audit event. Malformed messages are logged and
// skipped; store failures propagate so the message redelivers.
func (m *Materializer) Handle(ctx context.Context, msg *kafka.Message) error {
	var p payload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		m.logger.WarnContext(ctx, "skipping unparseable audit payload",
			"topic", msg.Topic, "key", string(msg.Key), "error", err)
		return nil
	}

	eventID, err := uuid.Parse(p.ID)
	if err != nil {
		m.logger.WarnContext(ctx, "skipping audit payload without event ID",
			"topic", msg.Topic, "key", string(msg.Key), "error", err)
		return nil
	}

	event := audit.Event{
		Category:       audit.EventCategory(p.Category),
		Action:         p.Action,
		Operation:      p.Operation,
		Decision:       p.Decision,
		Reason:         p.Reason,
		DelegatedEmail: p.DelegatedEmail,
		RequestID:      p.RequestID,
		ClientIP:       p.ClientIP,
		UserAgent:      p.UserAgent,
	}
	if p.CredentialID != "" {
		credID, err := id.ParseCredentialID(p.CredentialID)
		if err != nil {
			m.logger.WarnContext(ctx, "skipping audit payload with bad credential ID",
				"event_id", eventID, "error", err)
			return nil
		}
		event.CredentialID = credID
	}
	if p.DelegatedUserID != "" {
		userID, err := id.ParseUserID(p.DelegatedUserID)
		if err == nil {
			event.DelegatedUserID = userID
		}
	}
	if p.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
			event.Timestamp = ts
		}
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := m.store.InsertEvent(ctx, eventID, event); err != nil {
		return fmt.Errorf("materialize audit event %s: %w", eventID, err)
	}
	return nil
}
