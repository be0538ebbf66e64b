package store

import (
	"errors"
	"fmt"
)

// ErrorKind classifies store failures so callers can decide between retrying,
// surfacing, or skipping.
type ErrorKind string

const (
	KindNotFound    ErrorKind = "not_found"
	KindConflict    ErrorKind = "conflict"
	KindUnavailable ErrorKind = "unavailable"
	KindInvalid     ErrorKind = "invalid"
	KindInternal    ErrorKind = "internal"
)

// StoreError wraps a backend failure with its classification and the
// operation that produced it.
type StoreError struct {
	Kind ErrorKind
	Op   string
	Key  string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("store: %s %s (%s): %v", e.Op, e.Key, e.Kind, e.Err)
	}
	return fmt.Sprintf("store: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewError builds a classified store error.
func NewError(kind ErrorKind, op, key string, err error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Key: key, Err: err}
}

// IsNotFound reports whether err is a not-found store error.
func IsNotFound(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind == KindNotFound
}

// Retryable reports whether err is transient. Unavailable backends and
// internal backend faults are worth retrying; invalid input and missing keys
// never heal on retry.
func Retryable(err error) bool {
	var se *StoreError
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == KindUnavailable || se.Kind == KindInternal
}
