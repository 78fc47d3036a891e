// Package resilience wraps calls to the external generation service with a
// per-call timeout, a bounded retry loop with exponential backoff, and a
// circuit breaker shared by every pipeline run in the process.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/harrison/collabgen/internal/llm"
	"github.com/harrison/collabgen/internal/logger"
)

// RetryPolicy bounds the retry loop.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy returns 3 attempts with 1s, 2s, ... backoff capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
}

// Backoff returns the delay after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Config configures an Executor.
type Config struct {
	CallTimeout time.Duration
	Retry       RetryPolicy
}

// DefaultConfig returns a 60s call timeout and the default retry policy.
func DefaultConfig() Config {
	return Config{
		CallTimeout: 60 * time.Second,
		Retry:       DefaultRetryPolicy(),
	}
}

// Outcome is the result of one Executor.Call: either Text (with its token
// usage) or Err. Attempts counts how often the service was contacted.
type Outcome struct {
	Text     string
	Tokens   int64
	Attempts int
	Err      error
}

// OK reports whether the call produced text.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Result unpacks the outcome into Go's usual (value, error) pair.
func (o Outcome) Result() (string, error) {
	return o.Text, o.Err
}

// Executor is the single gateway to the external generation service.
// Create once per process and share it between pipeline runs; the breaker
// and the token meter are the only state it holds.
type Executor struct {
	gen     llm.Generator
	breaker *CircuitBreaker
	cfg     Config
	log     logger.Logger
	tokens  TokenMeter
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an Executor. breaker is injected so the caller owns
// its lifetime; a nil breaker gets a default one.
func NewExecutor(gen llm.Generator, breaker *CircuitBreaker, cfg Config, log logger.Logger) *Executor {
	if breaker == nil {
		breaker = NewCircuitBreaker(DefaultBreakerConfig())
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}
	return &Executor{
		gen:     gen,
		breaker: breaker,
		cfg:     cfg,
		log:     logger.OrDiscard(log),
		sleep:   sleepContext,
	}
}

// Breaker returns the shared circuit breaker.
func (e *Executor) Breaker() *CircuitBreaker {
	return e.breaker
}

// ResetBreaker closes the breaker out of band.
func (e *Executor) ResetBreaker() {
	e.breaker.Reset()
	e.log.LogInfo("circuit breaker reset")
}

// TokensUsed returns the tokens consumed by every successful call so far.
func (e *Executor) TokensUsed() int64 {
	return e.tokens.Total()
}

// Call sends req to the service.
//
// An open breaker fails the call immediately with ServiceUnavailableError.
// Transient failures and per-call timeouts are retried up to
// Retry.MaxAttempts with exponential backoff; anything else, including an
// empty answer, ends the loop at once. Every terminal failure counts
// against the breaker and every success resets it. A ctx deadline that cuts
// the loop short is a terminal failure; explicit cancellation of ctx stops
// the loop without counting against the breaker.
func (e *Executor) Call(ctx context.Context, req llm.GenerateRequest) Outcome {
	if !e.breaker.Allow() {
		e.breaker.RecordRejection()
		return Outcome{Err: &ServiceUnavailableError{Reason: ReasonCircuitOpen}}
	}

	var lastErr error
	attempt := 1
	for ; attempt <= e.cfg.Retry.MaxAttempts; attempt++ {
		resp, err := e.attempt(ctx, req)
		if err == nil {
			if resp == nil || strings.TrimSpace(resp.Text) == "" {
				e.breaker.RecordFailure()
				return Outcome{Attempts: attempt, Err: ErrEmptyResponse}
			}
			e.breaker.RecordSuccess()
			e.tokens.Add(resp.TotalTokens)
			if m := meterFrom(ctx); m != nil {
				m.Add(resp.TotalTokens)
			}
			e.log.LogDebug(fmt.Sprintf("generation succeeded on attempt %d (%d tokens)", attempt, resp.TotalTokens))
			return Outcome{Text: resp.Text, Tokens: resp.TotalTokens, Attempts: attempt}
		}

		if ctx.Err() != nil {
			e.release(ctx, err)
			return Outcome{Attempts: attempt, Err: ctx.Err()}
		}

		lastErr = err
		if !isRetryable(err) || attempt == e.cfg.Retry.MaxAttempts {
			break
		}

		delay := e.cfg.Retry.Backoff(attempt)
		e.log.LogWarn(fmt.Sprintf("generation attempt %d/%d failed, retrying in %s: %v",
			attempt, e.cfg.Retry.MaxAttempts, delay, err))
		if err := e.sleep(ctx, delay); err != nil {
			e.release(ctx, lastErr)
			return Outcome{Attempts: attempt, Err: err}
		}
	}

	e.breaker.RecordFailure()
	state := e.breaker.State()
	e.log.LogError(fmt.Sprintf("generation failed after %d attempt(s) (breaker %d/%d): %v",
		min(attempt, e.cfg.Retry.MaxAttempts), state.ConsecutiveFailures, state.Threshold, lastErr))
	return Outcome{Attempts: min(attempt, e.cfg.Retry.MaxAttempts), Err: lastErr}
}

// release settles the breaker for a loop that ctx ended. A deadline means
// the service did not answer in the time the caller had, which is a failure;
// cancellation says nothing about the service.
func (e *Executor) release(ctx context.Context, lastErr error) {
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e.breaker.Abandon()
		return
	}
	e.breaker.RecordFailure()
	state := e.breaker.State()
	e.log.LogError(fmt.Sprintf("generation did not finish before the deadline (breaker %d/%d): %v",
		state.ConsecutiveFailures, state.Threshold, lastErr))
}

// attempt makes one bounded call. The generator runs in its own goroutine
// so the deadline holds even if the transport ignores ctx; its context is
// cancelled on return so the connection is released on every path.
func (e *Executor) attempt(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if e.cfg.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
	}
	defer cancel()

	type result struct {
		resp *llm.GenerateResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := e.gen.Generate(callCtx, req)
		done <- result{resp, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-callCtx.Done():
		r = result{err: callCtx.Err()}
	}

	if r.err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return nil, NewTimeoutError("generate", e.cfg.CallTimeout, r.err)
	}
	return r.resp, r.err
}

// Probe sends a minimal request that bypasses the breaker's open-check and
// leaves breaker state untouched. Used for health reporting.
func (e *Executor) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := e.gen.Generate(ctx, llm.GenerateRequest{Prompt: "Hello", MaxTokens: 5})
	if err != nil {
		return fmt.Errorf("generation probe failed: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return fmt.Errorf("generation probe failed: %w", ErrEmptyResponse)
	}
	return nil
}

func isRetryable(err error) bool {
	var te *TimeoutError
	return llm.IsTransient(err) || errors.As(err, &te)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
