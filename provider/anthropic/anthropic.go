// Package anthropic adapts the Anthropic Messages API to the core.Invoker
// interface. Each invocation sends the task payload as a single-turn message
// and returns the concatenated text blocks of the reply; rate limits and
// server errors surface as transient failures so the task engine retries
// them.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tidewell/agenthub/core"
	"github.com/tidewell/agenthub/provider"
)

// Options configure the Anthropic invoker.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	// APIKey overrides the environment-based key when non-empty.
	APIKey string
	// SystemPrompt is sent as the system block when non-empty.
	SystemPrompt string
}

// Invoker wraps the Anthropic Messages API behind core.Invoker.
type Invoker struct {
	client *anthropic.Client
	opts   Options
}

var _ core.Invoker = (*Invoker)(nil)

// New creates an invoker using the official client.
func New(optFns ...func(o *Options)) *Invoker {
	opts := defaults()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Invoker{client: &client, opts: opts}
}

// NewFromClient creates an invoker from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Invoker {
	opts := defaults()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Invoker{client: client, opts: opts}
}

func defaults() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Invoke implements core.Invoker with a non-streaming message.
func (i *Invoker) Invoke(ctx context.Context, payload any) (any, error) {
	prompt := provider.PayloadText(payload)

	params := anthropic.MessageNewParams{
		Model:       i.opts.Model,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		MaxTokens:   i.opts.MaxTokens,
		Temperature: anthropic.Float(i.opts.Temperature),
	}
	if i.opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: i.opts.SystemPrompt}}
	}

	resp, err := i.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(fmt.Errorf("anthropic api error: %w", err))
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return sb.String(), nil
}

// classify marks throttling and server-side failures transient so the task
// engine retries them; client errors stay permanent.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode >= 500 {
			return core.Transient(err)
		}
		return err
	}
	return core.Transient(err)
}
