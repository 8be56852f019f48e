package printdesk

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Session event types.
const (
	EventSessionExpired   = "session.expired"
	EventSessionRefreshed = "session.refreshed"
	EventSessionLogin     = "session.login"
	EventSessionLogout    = "session.logout"
)

// SessionEvent reports a change of the stored credential pair.
type SessionEvent struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Type      string            `json:"type"`
	Subject   string            `json:"subject,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	LoginURL  string            `json:"login_url,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// EventSink receives session events. The dispatcher calls Emit from a single
// goroutine, so a slow sink delays every event behind it.
type EventSink interface {
	Emit(ctx context.Context, event SessionEvent)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, event SessionEvent)

func (f EventSinkFunc) Emit(ctx context.Context, event SessionEvent) {
	f(ctx, event)
}

// LoggerSink writes each event as a structured log line.
type LoggerSink struct {
	log *zap.Logger
}

func NewLoggerSink(log *zap.Logger) *LoggerSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggerSink{log: log.Named("session")}
}

func (s *LoggerSink) Emit(_ context.Context, event SessionEvent) {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("type", event.Type),
		zap.Time("at", event.Timestamp),
	}
	if event.Subject != "" {
		fields = append(fields, zap.String("subject", event.Subject))
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	if event.LoginURL != "" {
		fields = append(fields, zap.String("login_url", event.LoginURL))
	}

	if event.Type == EventSessionExpired {
		s.log.Warn("session event", fields...)
		return
	}
	s.log.Info("session event", fields...)
}
