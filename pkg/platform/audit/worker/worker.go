// Package worker relays audit events from the Postgres outbox to Kafka.
// The outbox write happens in the request path (often inside the caller's
// transaction); this worker moves entries to the broker asynchronously so a
// broker outage never blocks authorization.
package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Producer publishes a payload to a topic. Implemented by the franz-go
// producer in internal/platform/kafka.
type Producer interface {
	Produce(ctx context.Context, topic string, key, payload []byte) error
}

// topicByCategory routes outbox entries to per-retention topics.
var topicByCategory = map[string]string{
	"compliance": "audit.compliance",
	"security":   "audit.security",
	"operations": "audit.operations",
}

// Relay polls the outbox and publishes pending entries.
type Relay struct {
	db       *sql.DB
	producer Producer
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

// Option configures the Relay.
type Option func(*Relay)

// WithInterval overrides the poll interval (default 1s).
func WithInterval(d time.Duration) Option {
	return func(r *Relay) { r.interval = d }
}

// WithBatchSize overrides the per-poll batch size (default 100).
func WithBatchSize(n int) Option {
	return func(r *Relay) { r.batch = n }
}

// NewRelay creates an outbox relay.
func NewRelay(db *sql.DB, producer Producer, logger *slog.Logger, opts ...Option) *Relay {
	r := &Relay{
		db:       db,
		producer: producer,
		logger:   logger,
		interval: time.Second,
		batch:    100,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.relayBatch(ctx); err != nil {
				r.logger.WarnContext(ctx, "outbox relay batch failed", "error", err)
			}
		}
	}
}

type outboxRow struct {
	id          string
	aggregateID string
	eventType   string
	payload     []byte
	category    string
}

func (r *Relay) relayBatch(ctx context.Context) error {
	rows, err := r.pending(ctx)
	if err != nil {
		return err
	}

	for _, row := range rows {
		topic, ok := topicByCategory[row.category]
		if !ok {
			topic = topicByCategory["operations"]
		}
		// Key by aggregate so all events for one credential stay ordered
		// within a partition.
		if err := r.producer.Produce(ctx, topic, []byte(row.aggregateID), row.payload); err != nil {
			// Leave the row pending; the next poll retries.
			return fmt.Errorf("produce outbox entry %s: %w", row.id, err)
		}
		if err := r.markPublished(ctx, row.id); err != nil {
			return err
		}
	}
	return nil
}

func (r *Relay) pending(ctx context.Context) ([]outboxRow, error) {
	query := `
		SELECT id, aggregate_id, event_type, payload, payload->>'Category'
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, r.batch)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var out []outboxRow
	for rows.Next() {
		var row outboxRow
		var category sql.NullString
		if err := rows.Scan(&row.id, &row.aggregateID, &row.eventType, &row.payload, &category); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		row.category = category.String
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *Relay) markPublished(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET published_at = $1 WHERE id = $2`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("mark outbox entry published: %w", err)
	}
	return nil
}
