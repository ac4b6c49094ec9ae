package models

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks invalid initialization parameters.
	ErrConfiguration = errors.New("configuration error")
	// ErrIO marks an unavailable log file or filesystem.
	ErrIO = errors.New("io error")
	// ErrTransport marks a notification that could not be delivered.
	ErrTransport = errors.New("transport error")
	// ErrRejected marks a notification delivered but answered with a non-2xx status.
	ErrRejected = errors.New("notification rejected")
	// ErrInterrupted marks a delivery aborted during a retry backoff.
	ErrInterrupted = errors.New("notification interrupted")
)

// ConfigError wraps ErrConfiguration with the offending key.
func ConfigError(key string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrConfiguration, key, err)
}

// TransportError reports a delivery that failed after every attempt.
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("notification failed after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap exposes both ErrTransport and the last underlying cause.
func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// RejectedError reports a non-2xx response from the notification endpoint.
type RejectedError struct {
	StatusCode int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("endpoint returned status %d", e.StatusCode)
}

func (e *RejectedError) Unwrap() error {
	return ErrRejected
}

// FailureReason classifies a terminal notification error as a dead-letter reason.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrInterrupted):
		return ReasonInterrupted
	case errors.Is(err, ErrRejected):
		return ReasonRejected
	default:
		return ReasonTransportExhausted
	}
}
