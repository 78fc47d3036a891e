package llm

import (
	"context"
	"sync"
)

// HandlerFunc answers the n-th (1-based) call made to a FakeGenerator.
type HandlerFunc func(ctx context.Context, req GenerateRequest, call int) (*GenerateResponse, error)

// FakeGenerator is an in-memory Generator for tests and dry runs.
// It records every request and counts how often the transport was reached.
type FakeGenerator struct {
	mu       sync.Mutex
	handler  HandlerFunc
	requests []GenerateRequest
}

var _ Generator = (*FakeGenerator)(nil)

// NewFakeGenerator returns a fake driven by h.
func NewFakeGenerator(h HandlerFunc) *FakeGenerator {
	return &FakeGenerator{handler: h}
}

// Generate records req and delegates to the handler.
func (f *FakeGenerator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	h := f.handler
	f.mu.Unlock()

	if h == nil {
		return &GenerateResponse{}, nil
	}
	return h(ctx, req, n)
}

// Calls returns how many times Generate was invoked.
func (f *FakeGenerator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Requests returns a copy of every request received.
func (f *FakeGenerator) Requests() []GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]GenerateRequest(nil), f.requests...)
}

// Reply answers every call with the same text and token usage.
func Reply(text string, tokens int64) HandlerFunc {
	return func(context.Context, GenerateRequest, int) (*GenerateResponse, error) {
		return &GenerateResponse{Text: text, TotalTokens: tokens}, nil
	}
}

// Fail answers every call with err.
func Fail(err error) HandlerFunc {
	return func(context.Context, GenerateRequest, int) (*GenerateResponse, error) {
		return nil, err
	}
}

// Sequence answers call n with steps[n-1] and repeats the last step afterwards.
func Sequence(steps ...HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req GenerateRequest, call int) (*GenerateResponse, error) {
		if len(steps) == 0 {
			return &GenerateResponse{}, nil
		}
		i := call - 1
		if i >= len(steps) {
			i = len(steps) - 1
		}
		return steps[i](ctx, req, call)
	}
}

// Block waits until ctx is done and returns its error, simulating a hung service.
func Block() HandlerFunc {
	return func(ctx context.Context, _ GenerateRequest, _ int) (*GenerateResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}
