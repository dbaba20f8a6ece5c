package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.Debug("debug message")
	assert.Zero(t, buf.Len(), "debug should be filtered at info level")

	logger.Info("info message")
	entry := lastEntry(t, &buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "info message", entry["msg"])

	logger.Warn("warn message")
	assert.Equal(t, "WARN", lastEntry(t, &buf)["level"])

	logger.Error("error message")
	assert.Equal(t, "ERROR", lastEntry(t, &buf)["level"])
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("org_id", "abc").Info("message")
	assert.Equal(t, "abc", lastEntry(t, &buf)["org_id"])

	logger.WithFields(map[string]interface{}{"key1": "value1", "key2": 42}).Info("message")
	entry := lastEntry(t, &buf)
	assert.Equal(t, "value1", entry["key1"])
	assert.Equal(t, float64(42), entry["key2"])

	logger.WithError(errors.New("boom")).Error("failed")
	assert.Equal(t, "boom", lastEntry(t, &buf)["error"])

	assert.Same(t, logger, logger.WithError(nil))
}

func TestLogger_Formatters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	logger.Debugf("test %s %d", "string", 42)
	assert.Equal(t, "test string 42", lastEntry(t, &buf)["msg"])
	logger.Infof("test %d", 123)
	assert.Equal(t, "test 123", lastEntry(t, &buf)["msg"])
	logger.Warnf("warning %s", "test")
	assert.Equal(t, "warning test", lastEntry(t, &buf)["msg"])
	logger.Errorf("error %v", "test")
	assert.Equal(t, "error test", lastEntry(t, &buf)["msg"])
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":    DebugLevel,
		" DEBUG ":  DebugLevel,
		"info":     InfoLevel,
		"warn":     WarnLevel,
		"warning":  WarnLevel,
		"error":    ErrorLevel,
		"":         InfoLevel,
		"verbose!": InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
	assert.Equal(t, "WARN", WarnLevel.String())
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithUserID(ctx, "user-456")

	assert.Equal(t, "req-123", GetRequestID(ctx))
	assert.Equal(t, "user-456", GetUserID(ctx))

	FromContext(ctx).Info("test message")
	entry := lastEntry(t, &buf)
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "user-456", entry["user_id"])
	assert.NotContains(t, entry, "trace_id")

	assert.NotNil(t, GetLogger(context.Background()))
	assert.NotNil(t, NewLogger(InfoLevel, nil).Slog())
}
