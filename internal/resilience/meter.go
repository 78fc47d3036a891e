package resilience

import (
	"context"
	"sync/atomic"
)

// TokenMeter accumulates token usage from successful calls.
type TokenMeter struct {
	total atomic.Int64
}

// Add records n tokens.
func (m *TokenMeter) Add(n int64) {
	m.total.Add(n)
}

// Total returns the tokens recorded so far.
func (m *TokenMeter) Total() int64 {
	return m.total.Load()
}

// Reset sets the total back to zero.
func (m *TokenMeter) Reset() {
	m.total.Store(0)
}

type meterKey struct{}

// WithTokenMeter returns a context whose successful executor calls are also
// recorded in m. Pipeline runs use it to count only their own usage.
func WithTokenMeter(ctx context.Context, m *TokenMeter) context.Context {
	return context.WithValue(ctx, meterKey{}, m)
}

func meterFrom(ctx context.Context) *TokenMeter {
	m, _ := ctx.Value(meterKey{}).(*TokenMeter)
	return m
}
