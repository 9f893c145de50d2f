package brain

import (
	"context"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessages struct {
	params anthropic.MessageNewParams
	msg    *anthropic.Message
	err    error
}

func (f *fakeMessages) New(_ context.Context, body anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.params = body
	return f.msg, f.err
}

func TestAnthropicBrain_Execute(t *testing.T) {
	fake := &fakeMessages{msg: &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "hello "},
			{Type: "text", Text: "world"},
		},
		Usage:      anthropic.Usage{InputTokens: 1_000_000, OutputTokens: 100_000},
		StopReason: anthropic.StopReasonEndTurn,
	}}
	b := newAnthropicBrain(fake, anthropic.ModelClaudeSonnet4_20250514, 0, nil)

	resp, err := b.Execute(context.Background(), Request{
		Prompt:       "do it",
		SystemPrompt: "you are a worker",
		Context:      map[string]string{"task_id": "t1"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "hello world", resp.Output)
	assert.Equal(t, int64(1_000_000), resp.Cost.InputTokens)
	// $3 input + $1.50 output
	assert.InDelta(t, 450.0, resp.Cost.TotalCostCents, 0.001)

	assert.Equal(t, int64(8192), fake.params.MaxTokens)
	require.Len(t, fake.params.System, 1)
	assert.Equal(t, "you are a worker", fake.params.System[0].Text)
}

func TestAnthropicBrain_TruncatedReplyIsUnsuccessful(t *testing.T) {
	fake := &fakeMessages{msg: &anthropic.Message{
		Content:    []anthropic.ContentBlockUnion{{Type: "text", Text: "partial"}},
		StopReason: anthropic.StopReasonMaxTokens,
	}}
	b := newAnthropicBrain(fake, anthropic.ModelClaudeSonnet4_20250514, 100, nil)

	resp, err := b.Execute(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "partial", resp.Output)
}

func TestAnthropicBrain_TransportError(t *testing.T) {
	boom := errors.New("connection reset")
	b := newAnthropicBrain(&fakeMessages{err: boom}, anthropic.ModelClaudeSonnet4_20250514, 0, nil)

	_, err := b.Execute(context.Background(), Request{Prompt: "x"})
	assert.ErrorIs(t, err, boom)
}

func TestNewAnthropicBrain_RequiresKey(t *testing.T) {
	_, err := NewAnthropicBrain(context.Background(), Config{}, nil)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestComposePrompt(t *testing.T) {
	assert.Equal(t, "plain", composePrompt(Request{Prompt: "plain"}))

	got := composePrompt(Request{
		Prompt:  "base",
		WorkDir: "/ws",
		Context: map[string]string{"b": "2", "a": "1"},
	})
	assert.Equal(t, "base\n\n## Context\n- working_directory: /ws\n- a: 1\n- b: 2\n", got)
}

func TestBedrockModel(t *testing.T) {
	assert.Equal(t, anthropic.Model("us.anthropic.claude-sonnet-4-20250514-v1:0"),
		bedrockModel(anthropic.ModelClaudeSonnet4_20250514))
	assert.Equal(t, anthropic.Model("custom-model"), bedrockModel("custom-model"))
}

func TestPriceCents(t *testing.T) {
	tests := []struct {
		model string
		in    int64
		out   int64
		want  float64
	}{
		{"claude-sonnet-4-20250514", 1_000_000, 0, 300},
		{"claude-opus-4-1", 0, 1_000_000, 7500},
		{"claude-haiku-4-5", 1_000_000, 1_000_000, 600},
		{"unknown", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.InDelta(t, tt.want, PriceCents(tt.model, tt.in, tt.out), 0.0001)
		})
	}
}

func TestCostAdd(t *testing.T) {
	c := Cost{InputTokens: 1, OutputTokens: 2, TotalCostCents: 0.5}.Add(Cost{InputTokens: 3, OutputTokens: 4, TotalCostCents: 1})
	assert.Equal(t, Cost{InputTokens: 4, OutputTokens: 6, TotalCostCents: 1.5}, c)
}
