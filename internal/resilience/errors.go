package resilience

import (
	"errors"
	"fmt"
	"time"
)

// ReasonCircuitOpen is the ServiceUnavailableError reason used when the
// breaker rejects a call.
const ReasonCircuitOpen = "circuit-open"

// ErrEmptyResponse is returned when the service answers without content.
var ErrEmptyResponse = errors.New("service returned an empty response")

// TimeoutError reports a call that exceeded its configured limit.
type TimeoutError struct {
	Operation      string
	TimeoutSeconds float64
	Err            error
}

// NewTimeoutError creates a TimeoutError for op with limit d.
func NewTimeoutError(op string, d time.Duration, err error) *TimeoutError {
	return &TimeoutError{
		Operation:      op,
		TimeoutSeconds: d.Seconds(),
		Err:            err,
	}
}

// Error implements the error interface for TimeoutError.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %gs", e.Operation, e.TimeoutSeconds)
}

// Unwrap returns the underlying error for error wrapping support.
func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// ServiceUnavailableError reports a call that was refused without
// contacting the service.
type ServiceUnavailableError struct {
	Reason string
}

// Error implements the error interface for ServiceUnavailableError.
func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("service unavailable: %s", e.Reason)
}

// IsCircuitOpen reports whether err is a breaker rejection.
func IsCircuitOpen(err error) bool {
	var su *ServiceUnavailableError
	return errors.As(err, &su) && su.Reason == ReasonCircuitOpen
}
