// Package audit forwards status transitions to the history recorder.
package audit

import (
	"context"

	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/logger"

	"github.com/rs/zerolog"
)

// Sink receives audit events. repository.AuditRepository satisfies it.
type Sink interface {
	Record(ctx context.Context, event domain.AuditEvent) error
}

// LogSink writes every event as a structured log line.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink returns a sink logging to l.
func NewLogSink(l zerolog.Logger) *LogSink {
	return &LogSink{logger: l.With().Str("component", "audit").Logger()}
}

func (s *LogSink) Record(_ context.Context, event domain.AuditEvent) error {
	entry := s.logger.Info().
		Str("tenant_id", event.TenantID).
		Str("entity_type", event.EntityType).
		Str("entity_id", event.EntityID.String()).
		Str("action", string(event.Action))
	if event.FromStatus != "" {
		entry = entry.Str("from", event.FromStatus)
	}
	if event.ToStatus != "" {
		entry = entry.Str("to", event.ToStatus)
	}
	if len(event.Detail) > 0 {
		entry = entry.Interface("detail", event.Detail)
	}
	entry.Msg("audit event")
	return nil
}

// Multi fans an event out to several sinks and returns the first error.
type Multi []Sink

func (m Multi) Record(ctx context.Context, event domain.AuditEvent) error {
	var first error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Emit records event on every sink. A failing recorder never fails the transition it
// describes; the error is logged and dropped.
func Emit(ctx context.Context, event domain.AuditEvent, sinks ...Sink) {
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil {
			l := logger.FromContext(ctx)
			l.Warn().
				Err(err).
				Str("entity_id", event.EntityID.String()).
				Str("action", string(event.Action)).
				Msg("failed to record audit event")
		}
	}
}
