package notify

import (
	"context"
	"log/slog"
)

// LogPublisher writes events to a structured logger.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, ev Event) error {
	p.logger.InfoContext(ctx, "checkout event",
		"event_id", ev.ID,
		"type", string(ev.Type),
		"session_id", ev.SessionID,
	)
	return nil
}
