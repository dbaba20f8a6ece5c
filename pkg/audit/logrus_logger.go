package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// LogrusLogger writes audit events as JSON lines through logrus.
type LogrusLogger struct {
	logger *logrus.Logger
	closer io.Closer
}

// NewLogrusLogger creates an audit logger writing to out. A nil writer means
// stdout.
func NewLogrusLogger(out io.Writer) *LogrusLogger {
	if out == nil {
		out = os.Stdout
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyMsg: "message",
		},
	})
	return &LogrusLogger{logger: logger}
}

// NewFileLogger opens (or creates) path in append mode and logs to it.
func NewFileLogger(path string) (*LogrusLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	l := NewLogrusLogger(f)
	l.closer = f
	return l, nil
}

// Log writes one event.
func (l *LogrusLogger) Log(ctx context.Context, event *Event) error {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"status":     event.Status,
	}
	if event.UserID != "" {
		fields["user_id"] = event.UserID
	}
	if event.OrganizationID != "" {
		fields["organization_id"] = event.OrganizationID
	}
	if event.ResourceType != "" {
		fields["resource_type"] = event.ResourceType
		fields["resource_id"] = event.ResourceID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.IPAddress != "" {
		fields["ip_address"] = event.IPAddress
	}
	if event.Code != "" {
		fields["code"] = event.Code
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := l.logger.WithContext(ctx).WithFields(fields).WithTime(event.Timestamp)
	switch event.Status {
	case EventStatusDenied, EventStatusFailure:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}
	return nil
}

// Close closes the underlying file, if any.
func (l *LogrusLogger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
