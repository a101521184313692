package main

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthenticated   = errors.New("access denied")
	ErrNotFound          = errors.New("not found")
	ErrInvalidAddressing = errors.New("invalid request path")
	ErrLineNotEnabled    = errors.New("pin not enabled")
	ErrEmptySelection    = errors.New("no pins selected")
	ErrHardware          = errors.New("hardware operation failed")
	ErrTimeout           = errors.New("hardware operation timed out")
	ErrNotReady          = errors.New("agent is not accepting requests")
)

// notEnabledError names the number a client asked for, in the client's own
// numbering, and matches ErrLineNotEnabled.
type notEnabledError struct {
	kind string // "pin" or "GPIO"
	n    int
}

func (e *notEnabledError) Error() string {
	return fmt.Sprintf("the %s requested %d has not been enabled", e.kind, e.n)
}

func (e *notEnabledError) Unwrap() error { return ErrLineNotEnabled }

// HardwareError records a failed driver call for one pin.  It matches both
// ErrHardware and the underlying driver error.
type HardwareError struct {
	Op   string // claim, read, write or release
	Line int
	Err  error
}

func (e *HardwareError) Error() string {
	if e.Op == "release" {
		return fmt.Sprintf("release pins: %v", e.Err)
	}
	return fmt.Sprintf("%s pin %d: %v", e.Op, e.Line, e.Err)
}

func (e *HardwareError) Unwrap() []error { return []error{ErrHardware, e.Err} }

// statusFor maps an error to the HTTP status the agent answers with.
// Everything not listed is a 500, including validation failures.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
