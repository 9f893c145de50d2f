// Package brain is the inference port: it sends a composed prompt to a model
// and decodes the reply into a tagged result.
package brain

import (
	"context"
	"time"
)

// Request is one inference call.
type Request struct {
	Prompt       string
	SystemPrompt string
	// Context carries key/value facts appended to the prompt.
	Context map[string]string
	// WorkDir is the workspace the worker operates in, if any.
	WorkDir string
}

// Cost is the token usage and price of a call.
type Cost struct {
	InputTokens    int64   `json:"input_tokens"`
	OutputTokens   int64   `json:"output_tokens"`
	TotalCostCents float64 `json:"total_cost_cents"`
}

// Add returns the sum of two costs.
func (c Cost) Add(o Cost) Cost {
	return Cost{
		InputTokens:    c.InputTokens + o.InputTokens,
		OutputTokens:   c.OutputTokens + o.OutputTokens,
		TotalCostCents: c.TotalCostCents + o.TotalCostCents,
	}
}

// Response is the raw reply of an inference call.
type Response struct {
	Success  bool
	Output   string
	Duration time.Duration
	Cost     Cost
}

// Brain executes inference requests. Transport failures are returned as
// errors; a reply the model itself marks unsuccessful has Success false.
type Brain interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}
