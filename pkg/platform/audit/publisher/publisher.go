// Package publisher emits audit events to a Store, optionally through an
// async buffer so emission never blocks the request path.
//
// Emission is fire-and-forget from the caller's perspective: a full buffer
// drops the event (counted, logged) rather than stalling authorization.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "authrelay/pkg/domain"
	audit "authrelay/pkg/platform/audit"
)

// Lister is implemented by stores that support reading events back, used by
// admin surfaces and tests.
type Lister interface {
	ListByCredential(ctx context.Context, credentialID id.CredentialID) ([]audit.Event, error)
}

// Publisher writes audit events to a store, synchronously by default or via
// a buffered channel when WithAsyncBuffer is set.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	inbox  chan audit.Event
	done   chan struct{}
	closed sync.Once
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous emission with the given buffer size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan audit.Event, size)
		}
	}
}

// WithLogger sets a logger for drop/append failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a publisher over the given store.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

// Emit records an audit event. In async mode a full buffer drops the event;
// audit writes must never block or fail the original request.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}

	select {
	case p.inbox <- event:
	default:
		if p.logger != nil {
			p.logger.Warn("audit buffer full, dropping event", "action", event.Action)
		}
	}
	return nil
}

// List returns events recorded for a credential when the underlying store
// supports reads.
func (p *Publisher) List(ctx context.Context, credentialID id.CredentialID) ([]audit.Event, error) {
	if l, ok := p.store.(Lister); ok {
		return l.ListByCredential(ctx, credentialID)
	}
	return nil, nil
}

// Close drains any buffered events and stops the background writer.
func (p *Publisher) Close() {
	p.closed.Do(func() {
		if p.inbox != nil {
			close(p.inbox)
			<-p.done
		}
	})
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		if err := p.store.Append(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Warn("failed to append audit event", "action", event.Action, "error", err)
		}
	}
}
