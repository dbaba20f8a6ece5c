package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic logs a recovered panic with its stack trace. It must be
// deferred directly; the panic is swallowed.
//
//	defer observability.RecoverPanic(logger, "invitation expiry")
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logPanic(logger, where, r)
	}
}

// Go runs fn in a new goroutine that logs and swallows panics, so a bug in a
// background loop cannot take the API down with it.
func Go(logger *Logger, where string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logPanic(logger, where, r)
			}
		}()
		fn()
	}()
}

// PanicError converts a recovered value to an error. Nil stays nil.
//
//	defer func() { err = observability.PanicError(recover()) }()
func PanicError(r interface{}) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}

func logPanic(logger *Logger, where string, r interface{}) {
	if logger == nil {
		logger = NewLogger(ErrorLevel, nil)
	}
	logger.WithFields(map[string]interface{}{
		"panic":   fmt.Sprint(r),
		"stack":   string(debug.Stack()),
		"context": where,
	}).Error("PANIC recovered")
}
