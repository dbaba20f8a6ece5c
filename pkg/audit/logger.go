package audit

import (
	"context"
	"time"

	"github.com/platinummonkey/taskhub/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the sink
	Close() error
}

// Record fills in the timestamp and request id and logs the event. A nil
// logger is allowed and drops the event.
func Record(ctx context.Context, logger Logger, event *Event) {
	if logger == nil || event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = contextkeys.GetRequestID(ctx)
	}
	if event.UserID == "" {
		event.UserID = contextkeys.GetUserID(ctx)
	}
	if event.Status == "" {
		event.Status = EventStatusSuccess
	}
	// Audit failures never fail the request.
	_ = logger.Log(ctx, event)
}

// NoopLogger discards every event.
type NoopLogger struct{}

func (NoopLogger) Log(context.Context, *Event) error { return nil }
func (NoopLogger) Close() error                      { return nil }
