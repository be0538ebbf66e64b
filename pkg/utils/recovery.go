package utils

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// PanicError wraps a recovered panic as an error.
type PanicError struct {
	Value      interface{}
	StackTrace string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// RecoverAsError recovers from a panic and stores it in the pointed-to
// error return value. Call with defer at the top of the function.
func RecoverAsError(errPtr *error) {
	if r := recover(); r != nil {
		stack := string(debug.Stack())
		*errPtr = &PanicError{Value: r, StackTrace: stack}
		slog.Error("recovered from panic", "panic", r, "stack", stack)
	}
}

// RecoverWithCallback recovers from a panic and hands the error to the
// callback. Used inside worker goroutines where no error return exists.
func RecoverWithCallback(callback func(error)) {
	if r := recover(); r != nil {
		stack := string(debug.Stack())
		err := &PanicError{Value: r, StackTrace: stack}
		slog.Error("recovered from panic", "panic", r, "stack", stack)
		if callback != nil {
			callback(err)
		}
	}
}

// SafeGo runs fn in a goroutine with panic recovery.
func SafeGo(fn func(), onError func(error)) {
	go func() {
		defer RecoverWithCallback(onError)
		fn()
	}()
}
