// Package alerting provides sinks for delegation threshold-breach signals.
// Sinks are advisory: a failing sink is logged by the caller and never
// affects the request that triggered the breach.
package alerting

import (
	"context"
	"log/slog"

	"authrelay/internal/delegation/models"
)

// LogSink writes breach alerts to the structured log, tagged for the
// monitoring pipeline to pick up.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Raise(ctx context.Context, alert models.Alert) error {
	s.logger.WarnContext(ctx, "delegation failure threshold breached",
		"log_type", "alert",
		"credential_id", alert.CredentialID.String(),
		"failures_in_window", alert.FailureCountInWindow,
		"window_start", alert.WindowStart,
	)
	return nil
}

// Composite fans an alert out to every configured sink. All sinks run even
// when an earlier one fails; the first error is returned for the caller's
// warning log.
type Composite struct {
	sinks []Sink
}

// Sink matches ports.AlertSink without importing it, keeping this package
// free of the delegation wiring.
type Sink interface {
	Raise(ctx context.Context, alert models.Alert) error
}

func NewComposite(sinks ...Sink) *Composite {
	return &Composite{sinks: sinks}
}

func (c *Composite) Raise(ctx context.Context, alert models.Alert) error {
	var first error
	for _, sink := range c.sinks {
		if err := sink.Raise(ctx, alert); err != nil && first == nil {
			first = err
		}
	}
	return first
}
