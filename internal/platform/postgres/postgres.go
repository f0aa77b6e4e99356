// Package postgres owns the database handle and schema bootstrap.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver
)

// Open connects via the pgx stdlib driver and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id     UUID PRIMARY KEY,
	email  TEXT NOT NULL,
	roles  TEXT[] NOT NULL DEFAULT '{}',
	active BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (LOWER(email));

CREATE TABLE IF NOT EXISTS credentials (
	id                 UUID PRIMARY KEY,
	name               TEXT NOT NULL,
	permissions        TEXT[] NOT NULL DEFAULT '{}',
	delegation_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	allowed_domains    TEXT[] NOT NULL DEFAULT '{}',
	secret_hash        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS outbox (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	payload        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS outbox_pending_idx ON outbox (created_at) WHERE published_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_events (
	id                UUID PRIMARY KEY,
	credential_id     UUID,
	category          TEXT NOT NULL,
	timestamp         TIMESTAMPTZ NOT NULL,
	action            TEXT NOT NULL,
	operation         TEXT,
	decision          TEXT,
	reason            TEXT,
	delegated_email   TEXT,
	delegated_user_id UUID,
	request_id        TEXT,
	client_ip         TEXT,
	user_agent        TEXT
);
CREATE INDEX IF NOT EXISTS audit_events_credential_idx ON audit_events (credential_id, timestamp);
`

// EnsureSchema creates the tables this service owns. Idempotent; safe to run
// on every startup.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
