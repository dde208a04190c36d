// Package logsink writes audit events as structured log lines. It is the
// fallback sink when an external audit pipeline is unavailable.
package logsink

import (
	"context"
	"log/slog"

	audit "piiguard/pkg/platform/audit"
)

type Sink struct {
	logger *slog.Logger
	level  slog.Level
}

// New creates a log sink. A nil logger falls back to slog.Default().
func New(logger *slog.Logger, level slog.Level) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logger: logger.With("component", "audit"), level: level}
}

func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	attrs := []slog.Attr{
		slog.String("event_id", event.ID.String()),
		slog.String("category", string(event.Category)),
		slog.String("action", event.Action),
		slog.String("session_id", event.SessionID.String()),
		slog.String("actor_hash", event.ActorHash),
		slog.Bool("success", event.Success),
		slog.Time("timestamp", event.Timestamp),
	}
	if event.ErrorCode != "" {
		attrs = append(attrs, slog.String("error_code", event.ErrorCode))
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}
	if event.Detail != "" {
		attrs = append(attrs, slog.String("detail", event.Detail))
	}
	s.logger.LogAttrs(ctx, s.level, "audit event", attrs...)
	return nil
}
