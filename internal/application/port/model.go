package port

import (
	"context"
	"fmt"
)

// Document is a receipt file as uploaded by a caller
type Document struct {
	Name      string
	MediaType string
	Data      []byte
}

// ModelRequest is a single multimodal extraction request
type ModelRequest struct {
	Image       []byte
	MediaType   string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// ModelInvoker sends a request to an external vision-language model and returns
// the raw response body: an envelope of the form
// {"content":[{"type":"text","text":"..."}]}
type ModelInvoker interface {
	Invoke(ctx context.Context, req ModelRequest) ([]byte, error)
}

// DocumentPreparer turns an uploaded file into the image sent to the model
type DocumentPreparer interface {
	Prepare(ctx context.Context, doc Document) (Document, error)
}

// ModelErrorClass classifies failures reported by a model provider
type ModelErrorClass int

const (
	ModelErrorUnclassified ModelErrorClass = iota
	ModelErrorThrottled
	ModelErrorValidation
	ModelErrorNotReady
	ModelErrorQuotaExceeded
)

func (c ModelErrorClass) String() string {
	switch c {
	case ModelErrorThrottled:
		return "throttled"
	case ModelErrorValidation:
		return "validation"
	case ModelErrorNotReady:
		return "not_ready"
	case ModelErrorQuotaExceeded:
		return "quota_exceeded"
	default:
		return "unclassified"
	}
}

// ModelError is returned by ModelInvoker adapters so callers can decide on retries
// without knowing the provider SDK
type ModelError struct {
	Class ModelErrorClass
	Err   error
}

func (e *ModelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model error (%s)", e.Class)
	}
	return e.Err.Error()
}

func (e *ModelError) Unwrap() error {
	return e.Err
}
