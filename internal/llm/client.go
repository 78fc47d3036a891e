// Package llm defines the contract with the external text-generation service
// and provides an OpenAI chat-completions transport for it.
package llm

import (
	"context"
	"errors"
)

// Generator produces text for a prompt. Implementations must honor ctx
// cancellation and release network resources before returning.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is one generation call.
type GenerateRequest struct {
	Prompt         string
	SystemPreamble string
	Temperature    float64
	MaxTokens      int
}

// GenerateResponse carries the generated text and usage accounting.
type GenerateResponse struct {
	Text             string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// TransientError marks a failure that may succeed if retried, such as a
// refused connection, a transport timeout or a 5xx/429 response.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err (or anything it wraps) is a TransientError.
func IsTransient(err error) bool {
	return errors.As(err, new(*TransientError))
}
