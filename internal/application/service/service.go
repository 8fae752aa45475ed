// Package service holds the application use cases: receipt extraction and
// bookkeeping, chart of accounts lookups and spreadsheet export.
package service

import "errors"

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

var (
	// ErrInvalidInput marks a request the caller must correct
	ErrInvalidInput = errors.New("invalid input")
	// ErrAlreadySubmitted is returned when a receipt was already booked
	ErrAlreadySubmitted = errors.New("receipt already submitted")
	// ErrAccountingDisabled is returned when no accounting system is configured
	ErrAccountingDisabled = errors.New("accounting integration is disabled")
)
