package compress

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ikaris-ai/ikaris/internal/llm"
	"github.com/ikaris-ai/ikaris/internal/state"
)

type fakeLLM struct {
	reply string
	err   error
	calls int
	last  []llm.Message
}

func (f *fakeLLM) Invoke(_ context.Context, _ string, messages []llm.Message) (llm.Response, error) {
	f.calls++
	f.last = messages
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.reply}, nil
}

func (f *fakeLLM) Stream(ctx context.Context, purpose string, messages []llm.Message, _ func(string) error) (llm.Response, error) {
	return f.Invoke(ctx, purpose, messages)
}

func history(n int) []state.Message {
	msgs := make([]state.Message, 0, n)
	for i := 0; i < n; i++ {
		role := state.RoleUser
		if i%2 == 1 {
			role = state.RoleAssistant
		}
		msgs = append(msgs, state.Message{Role: role, Content: fmt.Sprintf("turn %d", i)})
	}
	return msgs
}

func TestCompressUnderThreshold(t *testing.T) {
	fake := &fakeLLM{reply: "should not be called"}
	c := New(fake, zap.NewNop())

	res, err := c.Compress(context.Background(), history(19), "earlier summary")

	require.NoError(t, err)
	assert.False(t, res.Compressed)
	assert.Equal(t, "earlier summary", res.Summary)
	assert.Empty(t, res.Delta)
	assert.Zero(t, fake.calls)
}

func TestCompressAtThreshold(t *testing.T) {
	fake := &fakeLLM{}
	c := New(fake, zap.NewNop())

	res, err := c.Compress(context.Background(), history(MaxMessages), "")

	require.NoError(t, err)
	assert.False(t, res.Compressed)
	assert.Zero(t, fake.calls)
}

func TestCompressOverThreshold(t *testing.T) {
	fake := &fakeLLM{reply: "  the gist  "}
	c := New(fake, zap.NewNop())

	res, err := c.Compress(context.Background(), history(25), "prior")

	require.NoError(t, err)
	assert.True(t, res.Compressed)
	assert.Equal(t, "the gist", res.Summary)

	// One summary marker plus the six verbatim recent turns.
	require.Len(t, res.Delta, 1+KeepRecent)
	assert.Equal(t, state.RoleSummary, res.Delta[0].Role)
	assert.Equal(t, "the gist", res.Delta[0].Content)
	assert.Equal(t, "turn 19", res.Delta[1].Content)
	assert.Equal(t, "turn 24", res.Delta[6].Content)

	// The 19 older turns fed the prompt, alongside the prior summary.
	require.Equal(t, 1, fake.calls)
	prompt := fake.last[1].Content
	assert.Contains(t, prompt, "prior")
	assert.Contains(t, prompt, "turn 18")
	assert.NotContains(t, prompt, "turn 19")
}

func TestCompressModelError(t *testing.T) {
	fake := &fakeLLM{err: errors.New("model down")}
	c := New(fake, zap.NewNop())

	res, err := c.Compress(context.Background(), history(25), "prior")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model down")
	assert.False(t, res.Compressed)
	assert.Empty(t, res.Delta)
}
