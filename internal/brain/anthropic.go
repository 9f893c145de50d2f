package brain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"
)

// ErrNoAPIKey is returned when the direct API is selected without a key.
var ErrNoAPIKey = errors.New("anthropic API key is not set")

// Config selects the model and transport.
type Config struct {
	APIKey     string
	Model      string
	MaxTokens  int64
	UseBedrock bool
	AWSRegion  string
	AWSProfile string
}

// messageCreator is the slice of the SDK used here.
type messageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicBrain implements Brain with the Anthropic Messages API, directly
// or through AWS Bedrock.
type AnthropicBrain struct {
	messages  messageCreator
	model     anthropic.Model
	maxTokens int64
	logger    *zap.Logger
}

// NewAnthropicBrain creates a Brain from cfg.
func NewAnthropicBrain(ctx context.Context, cfg Config, logger *zap.Logger) (*AnthropicBrain, error) {
	var opts []option.RequestOption
	if cfg.UseBedrock {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		if cfg.APIKey == "" {
			return nil, ErrNoAPIKey
		}
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseBedrock {
		model = bedrockModel(model)
	}

	client := anthropic.NewClient(opts...)
	return newAnthropicBrain(&client.Messages, model, cfg.MaxTokens, logger), nil
}

func newAnthropicBrain(m messageCreator, model anthropic.Model, maxTokens int64, logger *zap.Logger) *AnthropicBrain {
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnthropicBrain{messages: m, model: model, maxTokens: maxTokens, logger: logger}
}

// Model returns the model requests are sent to.
func (b *AnthropicBrain) Model() string { return string(b.model) }

// Execute sends one message and collects the text reply.
func (b *AnthropicBrain) Execute(ctx context.Context, req Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     b.model,
		MaxTokens: b.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(composePrompt(req))),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	start := time.Now()
	msg, err := b.messages.New(ctx, params)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("inference call: %w", err)
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}

	cost := Cost{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
	cost.TotalCostCents = PriceCents(string(b.model), cost.InputTokens, cost.OutputTokens)

	b.logger.Debug("inference complete",
		zap.String("model", string(b.model)),
		zap.Duration("elapsed", elapsed),
		zap.Int64("input_tokens", cost.InputTokens),
		zap.Int64("output_tokens", cost.OutputTokens),
		zap.String("stop_reason", string(msg.StopReason)))

	return &Response{
		Success:  out.Len() > 0 && msg.StopReason != anthropic.StopReasonMaxTokens,
		Output:   out.String(),
		Duration: elapsed,
		Cost:     cost,
	}, nil
}

// composePrompt appends request context as a sorted key/value section.
func composePrompt(req Request) string {
	if len(req.Context) == 0 && req.WorkDir == "" {
		return req.Prompt
	}
	var b strings.Builder
	b.WriteString(req.Prompt)
	b.WriteString("\n\n## Context\n")
	if req.WorkDir != "" {
		fmt.Fprintf(&b, "- working_directory: %s\n", req.WorkDir)
	}
	keys := make([]string, 0, len(req.Context))
	for k := range req.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, req.Context[k])
	}
	return b.String()
}

// bedrockModel maps API model names to Bedrock cross-region inference profiles.
func bedrockModel(model anthropic.Model) anthropic.Model {
	profiles := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514: "us.anthropic.claude-sonnet-4-20250514-v1:0",
		"claude-sonnet-4-5-20250929":          "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		"claude-haiku-4-5-20251001":           "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		"claude-opus-4-1-20250805":            "us.anthropic.claude-opus-4-1-20250805-v1:0",
	}
	if p, ok := profiles[model]; ok {
		return anthropic.Model(p)
	}
	return model
}

// PriceCents estimates the cost of a call in US cents from per-million-token list prices.
func PriceCents(model string, input, output int64) float64 {
	inPerM, outPerM := 3.0, 15.0
	switch m := strings.ToLower(model); {
	case strings.Contains(m, "opus"):
		inPerM, outPerM = 15.0, 75.0
	case strings.Contains(m, "haiku"):
		inPerM, outPerM = 1.0, 5.0
	}
	dollars := float64(input)/1_000_000*inPerM + float64(output)/1_000_000*outPerM
	return dollars * 100
}
