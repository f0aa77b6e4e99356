// Package resolver decorates the identity resolver with a circuit breaker so
// a user-store outage fails fast instead of holding every request for the
// full lookup timeout.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"authrelay/pkg/platform/circuit"
	"authrelay/pkg/platform/sentinel"

	"authrelay/internal/delegation/models"
	"authrelay/internal/delegation/ports"
)

// probeEvery is how many requests fail fast between probes while the
// breaker is open. Probes are what let the breaker close again.
const probeEvery = 10

// Guarded wraps an IdentityResolver with a circuit breaker. While the
// breaker is open most Resolve calls fail fast with sentinel.ErrUnavailable and
// one in probeEvery goes through as a probe; "not found" counts as a
// healthy store response, not a failure.
type Guarded struct {
	inner   ports.IdentityResolver
	breaker *circuit.Breaker
	logger  *slog.Logger
	skipped atomic.Int64
}

// NewGuarded creates a breaker-protected resolver.
func NewGuarded(inner ports.IdentityResolver, logger *slog.Logger) *Guarded {
	return &Guarded{
		inner:   inner,
		breaker: circuit.New("identity-resolver", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
		logger:  logger,
	}
}

func (g *Guarded) Resolve(ctx context.Context, email string) (*models.Identity, error) {
	if g.breaker.IsOpen() && g.skipped.Add(1)%probeEvery != 0 {
		return nil, fmt.Errorf("identity resolver circuit open: %w", sentinel.ErrUnavailable)
	}

	identity, err := g.inner.Resolve(ctx, email)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.ErrorContext(ctx, "identity resolver circuit opened", "breaker", g.breaker.Name())
		}
		return nil, err
	}

	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "identity resolver circuit closed", "breaker", g.breaker.Name())
	}
	return identity, err
}
