package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShutdownManager_Defaults(t *testing.T) {
	sm := NewShutdownManager(nil, 0)
	assert.Equal(t, DefaultShutdownTimeout, sm.timeout)
	assert.NotNil(t, sm.logger)
}

func TestShutdownManager_ReverseOrder(t *testing.T) {
	var order []string
	sm := NewShutdownManager(NewLogger(ErrorLevel, &bytes.Buffer{}), time.Second)
	for _, name := range []string{"store", "redis", "api"} {
		name := name
		sm.Register(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	sm.Register("nil", nil)

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, []string{"api", "redis", "store"}, order)

	// Second call is a no-op
	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestShutdownManager_JoinsErrors(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	ran := 0

	sm := NewShutdownManager(NewLogger(ErrorLevel, &bytes.Buffer{}), time.Second)
	sm.RegisterCloser("a", func() error { ran++; return errA })
	sm.RegisterCloser("ok", func() error { ran++; return nil })
	sm.RegisterCloser("b", func() error { ran++; return errB })

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Contains(t, err.Error(), "a: a failed")
	assert.Equal(t, 3, ran)
}

func TestShutdownManager_Timeout(t *testing.T) {
	sm := NewShutdownManager(NewLogger(ErrorLevel, &bytes.Buffer{}), 20*time.Millisecond)
	sm.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := sm.Shutdown(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestShutdownManager_RegisterServer(t *testing.T) {
	ts := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Start()
	defer ts.Close()

	sm := NewShutdownManager(NewLogger(ErrorLevel, &bytes.Buffer{}), time.Second)
	sm.RegisterServer("api", ts.Config)
	require.NoError(t, sm.Shutdown(context.Background()))

	_, err := http.Get(ts.URL)
	assert.Error(t, err)
}
