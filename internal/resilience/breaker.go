package resilience

import (
	"fmt"
	"sync"
	"time"
)

// RecoveryPolicy selects how an open breaker may close again.
type RecoveryPolicy string

const (
	// RecoveryNever keeps the breaker open until Reset is called.
	RecoveryNever RecoveryPolicy = "never"
	// RecoveryHalfOpen lets a single probe call through once the recovery
	// timeout has elapsed since the breaker opened.
	RecoveryHalfOpen RecoveryPolicy = "half-open"
)

// ParseRecoveryPolicy validates a policy name. Empty means RecoveryNever.
func ParseRecoveryPolicy(s string) (RecoveryPolicy, error) {
	switch RecoveryPolicy(s) {
	case "", RecoveryNever:
		return RecoveryNever, nil
	case RecoveryHalfOpen:
		return RecoveryHalfOpen, nil
	}
	return "", fmt.Errorf("unknown recovery policy %q (valid: never, half-open)", s)
}

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	Threshold       int
	Recovery        RecoveryPolicy
	RecoveryTimeout time.Duration
}

// DefaultBreakerConfig returns a threshold of 5 with no timed recovery.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold:       5,
		Recovery:        RecoveryNever,
		RecoveryTimeout: 60 * time.Second,
	}
}

// BreakerState is a point-in-time view of a CircuitBreaker.
type BreakerState struct {
	ConsecutiveFailures int
	Threshold           int
	Open                bool
	Probing             bool
	OpenedAt            time.Time
}

// CircuitBreaker counts consecutive failures of one external service.
// It is shared by every caller of that service and is safe for concurrent use.
// The breaker is open while ConsecutiveFailures >= Threshold.
type CircuitBreaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	failures int
	openedAt time.Time
	probeAt  time.Time
	probing  bool
	now      func() time.Time
}

// NewCircuitBreaker creates a closed breaker. A non-positive threshold
// falls back to the default.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultBreakerConfig().Threshold
	}
	if cfg.Recovery == "" {
		cfg.Recovery = RecoveryNever
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Allow reports whether a call may reach the service.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.cfg.Threshold {
		return true
	}
	if b.cfg.Recovery != RecoveryHalfOpen {
		return false
	}

	now := b.now()
	if b.probing {
		// A probe whose outcome was never recorded is abandoned after one
		// more recovery interval so the breaker cannot wedge half-open.
		if now.Sub(b.probeAt) < b.cfg.RecoveryTimeout {
			return false
		}
	} else if now.Sub(b.openedAt) < b.cfg.RecoveryTimeout {
		return false
	}
	b.probing = true
	b.probeAt = now
	return true
}

// RecordSuccess closes the breaker and clears the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
	b.openedAt = time.Time{}
}

// RecordFailure counts one terminal failure.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.cfg.Threshold && (b.openedAt.IsZero() || b.probing) {
		b.openedAt = b.now()
	}
	b.probing = false
}

// RecordRejection counts a call turned away by the open breaker. It leaves
// the recovery window and any in-flight probe alone.
func (b *CircuitBreaker) RecordRejection() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
}

// Abandon releases a granted call without counting it either way.
// Used when the caller cancels before the service answered.
func (b *CircuitBreaker) Abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

// Reset closes the breaker unconditionally.
func (b *CircuitBreaker) Reset() {
	b.RecordSuccess()
}

// IsOpen reports whether the failure count has reached the threshold.
func (b *CircuitBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures >= b.cfg.Threshold
}

// State returns a snapshot of the breaker.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerState{
		ConsecutiveFailures: b.failures,
		Threshold:           b.cfg.Threshold,
		Open:                b.failures >= b.cfg.Threshold,
		Probing:             b.probing,
		OpenedAt:            b.openedAt,
	}
}
