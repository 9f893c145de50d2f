// Package gates decides whether a worker's output is acceptable before a
// change request is opened.
package gates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/hollon/internal/brain"
	"github.com/ShayCichocki/hollon/internal/exec"
	"github.com/ShayCichocki/hollon/pkg/models"
)

// Input is what a gate inspects.
type Input struct {
	Task    *models.Task
	Output  string
	Cost    brain.Cost
	WorkDir string
}

// Failure is returned by a gate that rejects its input. Retryable failures
// feed back into another attempt; others end the task.
type Failure struct {
	Gate      string
	Reason    string
	Retryable bool
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s gate: %s", f.Gate, f.Reason)
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Gate evaluates one quality criterion. A nil error means pass.
type Gate interface {
	Name() string
	Evaluate(ctx context.Context, in Input) error
}

// Chain runs gates in order and stops at the first failure.
type Chain struct {
	gates  []Gate
	logger *zap.Logger
}

// NewChain creates a chain of the given gates.
func NewChain(logger *zap.Logger, gates ...Gate) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{gates: gates, logger: logger}
}

// Gates returns the gates in evaluation order.
func (c *Chain) Gates() []Gate {
	return append([]Gate(nil), c.gates...)
}

// Evaluate implements Gate.
func (c *Chain) Evaluate(ctx context.Context, in Input) error {
	for _, g := range c.gates {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		err := g.Evaluate(ctx, in)
		fields := []zap.Field{zap.String("gate", g.Name()), zap.Duration("elapsed", time.Since(start))}
		if in.Task != nil {
			fields = append(fields, zap.String("task_id", in.Task.ID))
		}
		if err != nil {
			c.logger.Info("quality gate failed", append(fields, zap.Error(err))...)
			return err
		}
		c.logger.Debug("quality gate passed", fields...)
	}
	return nil
}

// Name implements Gate.
func (c *Chain) Name() string { return "chain" }

// OutputGate rejects empty or very short output.
type OutputGate struct {
	MinLength int
}

// Name implements Gate.
func (OutputGate) Name() string { return "output" }

// Evaluate implements Gate.
func (g OutputGate) Evaluate(_ context.Context, in Input) error {
	n := len(strings.TrimSpace(in.Output))
	if n == 0 {
		return &Failure{Gate: g.Name(), Reason: "worker produced no output", Retryable: true}
	}
	if n < g.MinLength {
		return &Failure{
			Gate:      g.Name(),
			Reason:    fmt.Sprintf("output is %d characters, expected at least %d", n, g.MinLength),
			Retryable: true,
		}
	}
	return nil
}

// CostGate ends a task whose inference spend exceeds a ceiling. A zero
// ceiling disables the gate.
type CostGate struct {
	MaxCents float64
}

// Name implements Gate.
func (CostGate) Name() string { return "cost" }

// Evaluate implements Gate.
func (g CostGate) Evaluate(_ context.Context, in Input) error {
	if g.MaxCents <= 0 || in.Cost.TotalCostCents <= g.MaxCents {
		return nil
	}
	return &Failure{
		Gate:   g.Name(),
		Reason: fmt.Sprintf("spent %.2f cents, ceiling is %.2f", in.Cost.TotalCostCents, g.MaxCents),
	}
}

// Config selects the default gates.
type Config struct {
	MinOutputLength int
	MaxCostCents    float64
	Timeout         time.Duration
	Test            bool
	Build           bool
	Lint            bool
	Typecheck       bool
}

// Default builds the standard chain: output, cost, then the enabled
// command gates in build, typecheck, lint, test order.
func Default(cfg Config, runner exec.CommandRunner, logger *zap.Logger) *Chain {
	gs := []Gate{
		OutputGate{MinLength: cfg.MinOutputLength},
		CostGate{MaxCents: cfg.MaxCostCents},
	}
	for _, c := range []struct {
		kind    CheckKind
		enabled bool
	}{
		{CheckBuild, cfg.Build},
		{CheckTypecheck, cfg.Typecheck},
		{CheckLint, cfg.Lint},
		{CheckTest, cfg.Test},
	} {
		if c.enabled {
			gs = append(gs, NewCommandGate(c.kind, runner, cfg.Timeout))
		}
	}
	return NewChain(logger, gs...)
}
