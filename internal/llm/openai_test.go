package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeNetErr struct{}

func (fakeNetErr) Error() string   { return "dial tcp: i/o timeout" }
func (fakeNetErr) Timeout() bool   { return true }
func (fakeNetErr) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "net error", err: fakeNetErr{}, transient: true},
		{name: "deadline", err: fmt.Errorf("post: %w", context.DeadlineExceeded), transient: true},
		{name: "refused", err: errors.New("dial tcp 127.0.0.1:443: connection refused"), transient: true},
		{name: "canceled", err: context.Canceled, transient: false},
		{name: "malformed", err: errors.New("invalid character '<' looking for beginning of value"), transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err)
			assert.Equal(t, tt.transient, IsTransient(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestTransientWrapping(t *testing.T) {
	assert.NoError(t, Transient(nil))

	base := errors.New("boom")
	wrapped := fmt.Errorf("call: %w", Transient(base))
	assert.True(t, IsTransient(wrapped))
	assert.ErrorIs(t, wrapped, base)
	assert.False(t, IsTransient(base))
}

func TestFakeGenerator_Sequence(t *testing.T) {
	boom := errors.New("boom")
	f := NewFakeGenerator(Sequence(Fail(boom), Reply("ok", 7)))

	_, err := f.Generate(context.Background(), GenerateRequest{Prompt: "a"})
	assert.ErrorIs(t, err, boom)

	resp, err := f.Generate(context.Background(), GenerateRequest{Prompt: "b"})
	assert.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, int64(7), resp.TotalTokens)

	resp, err = f.Generate(context.Background(), GenerateRequest{Prompt: "c"})
	assert.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)

	assert.Equal(t, 3, f.Calls())
	assert.Equal(t, "b", f.Requests()[1].Prompt)
}
