package extraction

import (
	"errors"
	"fmt"
)

// Kind classifies extraction failures
type Kind int

const (
	KindThrottled Kind = iota + 1
	KindMalformedRequest
	KindModelUnavailable
	KindQuotaExceeded
	KindResponseShape
	KindEmptyExtraction
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindThrottled:
		return "throttled"
	case KindMalformedRequest:
		return "malformed_request"
	case KindModelUnavailable:
		return "model_unavailable"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindResponseShape:
		return "response_shape"
	case KindEmptyExtraction:
		return "empty_extraction"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// Caller-facing messages
const (
	MsgThrottled        = "Service is busy. Please try again in a few moments."
	MsgModelUnavailable = "AI model is currently unavailable. Please try again in a few moments."
	MsgQuotaExceeded    = "Service quota exceeded. Please try again later."
	MsgInvalidResponse  = "Invalid response format from model"
	MsgNoJSON           = "No valid JSON found in the response"
	MsgEmptyExtraction  = "No valid receipt data could be extracted from the image"
	MsgPrepareFailed    = "Failed to optimize the image. Please try a smaller image or lower quality scan."
)

// Error is a classified extraction failure. Message is safe to show to the
// caller; Err keeps the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request may succeed later
func (e *Error) Retryable() bool {
	return e.Kind == KindThrottled
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	var extErr *Error
	if errors.As(err, &extErr) {
		return extErr.Kind == kind
	}
	return false
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}
