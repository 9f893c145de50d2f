// Package braintest provides a scripted Brain for tests.
package braintest

import (
	"context"
	"errors"
	"sync"

	"github.com/ShayCichocki/hollon/internal/brain"
)

// ErrExhausted is returned when every scripted reply has been consumed.
var ErrExhausted = errors.New("braintest: no scripted replies left")

// Reply is one scripted response or error.
type Reply struct {
	Response *brain.Response
	Err      error
}

// Brain replays scripted replies in order and records each request.
type Brain struct {
	mu       sync.Mutex
	replies  []Reply
	requests []brain.Request
}

// New returns a Brain that answers with replies in order.
func New(replies ...Reply) *Brain {
	return &Brain{replies: replies}
}

// Output is shorthand for a successful reply with the given text and cost.
func Output(text string, cents float64) Reply {
	return Reply{Response: &brain.Response{
		Success: true,
		Output:  text,
		Cost:    brain.Cost{InputTokens: 100, OutputTokens: 50, TotalCostCents: cents},
	}}
}

// Push appends further replies.
func (b *Brain) Push(replies ...Reply) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies = append(b.replies, replies...)
}

// Execute implements brain.Brain.
func (b *Brain) Execute(ctx context.Context, req brain.Request) (*brain.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if len(b.replies) == 0 {
		return nil, ErrExhausted
	}
	r := b.replies[0]
	b.replies = b.replies[1:]
	return r.Response, r.Err
}

// Requests returns a copy of the requests received so far.
func (b *Brain) Requests() []brain.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]brain.Request, len(b.requests))
	copy(out, b.requests)
	return out
}
