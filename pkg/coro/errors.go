package coro

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned when a scheduler's loop is started twice.
	ErrAlreadyStarted = errors.New("scheduler already started")

	// ErrStopped is returned when starting a scheduler that has been stopped.
	ErrStopped = errors.New("scheduler stopped")
)

// PanicError wraps a value recovered from a panicking sequence.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("sequence panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
