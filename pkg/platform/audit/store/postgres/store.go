package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "authrelay/pkg/domain"
	audit "authrelay/pkg/platform/audit"
	txcontext "authrelay/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table and published to Kafka by the outbox
// relay. Kafka is the source of truth for audit events.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka. Field names match
// audit.Event for proper deserialization by consumers.
type outboxPayload struct {
	ID              string `json:"ID"`
	Category        string `json:"Category"`
	Timestamp       string `json:"Timestamp"`
	CredentialID    string `json:"CredentialID,omitempty"`
	Action          string `json:"Action"`
	Operation       string `json:"Operation,omitempty"`
	Decision        string `json:"Decision,omitempty"`
	Reason          string `json:"Reason,omitempty"`
	DelegatedEmail  string `json:"DelegatedEmail,omitempty"`
	DelegatedUserID string `json:"DelegatedUserID,omitempty"`
	RequestID       string `json:"RequestID,omitempty"`
	ClientIP        string `json:"ClientIP,omitempty"`
	UserAgent       string `json:"UserAgent,omitempty"`
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	// Category always derives from the action; the eventCategories map is
	// the source of truth.
	category := audit.AuditEvent(event.Action).Category()

	payload := outboxPayload{
		ID:             eventID.String(),
		Category:       string(category),
		Timestamp:      event.Timestamp.Format(time.RFC3339Nano),
		Action:         event.Action,
		Operation:      event.Operation,
		Decision:       event.Decision,
		Reason:         event.Reason,
		DelegatedEmail: event.DelegatedEmail,
		RequestID:      event.RequestID,
		ClientIP:       event.ClientIP,
		UserAgent:      event.UserAgent,
	}
	if !event.CredentialID.IsNil() {
		payload.CredentialID = event.CredentialID.String()
	}
	if !event.DelegatedUserID.IsNil() {
		payload.DelegatedUserID = event.DelegatedUserID.String()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "audit"
	aggregateID := eventID.String()
	if !event.CredentialID.IsNil() {
		aggregateType = "credential"
		aggregateID = event.CredentialID.String()
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		eventID,
		aggregateType,
		aggregateID,
		event.Action,
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// InsertEvent materializes a consumed audit event into the audit_events
// table. Keyed on the event ID so Kafka redelivery is idempotent.
func (s *Store) InsertEvent(ctx context.Context, eventID uuid.UUID, event audit.Event) error {
	query := `
		INSERT INTO audit_events (id, credential_id, category, timestamp, action,
		                          operation, decision, reason, delegated_email,
		                          delegated_user_id, request_id, client_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`
	var credentialID, delegatedUserID any
	if !event.CredentialID.IsNil() {
		credentialID = uuid.UUID(event.CredentialID)
	}
	if !event.DelegatedUserID.IsNil() {
		delegatedUserID = uuid.UUID(event.DelegatedUserID)
	}
	_, err := s.execer(ctx).ExecContext(ctx, query,
		eventID,
		credentialID,
		string(event.Category),
		event.Timestamp,
		event.Action,
		event.Operation,
		event.Decision,
		event.Reason,
		event.DelegatedEmail,
		delegatedUserID,
		event.RequestID,
		event.ClientIP,
		event.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByCredential reads back materialized audit events for a credential.
func (s *Store) ListByCredential(ctx context.Context, credentialID id.CredentialID) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, action, operation, decision, reason,
		       delegated_email, delegated_user_id, request_id, client_ip, user_agent
		FROM audit_events
		WHERE credential_id = $1
		ORDER BY timestamp
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(credentialID))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event           audit.Event
			category        string
			delegatedUserID *uuid.UUID
			operation       sql.NullString
			decision        sql.NullString
			reason          sql.NullString
			delegatedEmail  sql.NullString
			requestID       sql.NullString
			clientIP        sql.NullString
			userAgent       sql.NullString
		)
		if err := rows.Scan(&category, &event.Timestamp, &event.Action, &operation,
			&decision, &reason, &delegatedEmail, &delegatedUserID, &requestID,
			&clientIP, &userAgent); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.CredentialID = credentialID
		event.Operation = operation.String
		event.Decision = decision.String
		event.Reason = reason.String
		event.DelegatedEmail = delegatedEmail.String
		event.RequestID = requestID.String
		event.ClientIP = clientIP.String
		event.UserAgent = userAgent.String
		if delegatedUserID != nil {
			event.DelegatedUserID = id.UserID(*delegatedUserID)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
