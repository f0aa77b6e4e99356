package audit

import "context"

// Store persists audit events. Implementations: in-memory (tests, dev) and
// the Postgres outbox (production, relayed to Kafka).
type Store interface {
	Append(ctx context.Context, event Event) error
}
