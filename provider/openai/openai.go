// Package openai adapts the OpenAI Chat Completions API to the core.Invoker
// interface. Each invocation sends the task payload as a single-turn chat and
// returns the completion text; rate limits and server errors surface as
// transient failures so the task engine retries them.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/tidewell/agenthub/core"
	"github.com/tidewell/agenthub/provider"
)

// Options configure the OpenAI invoker. Fields mirror a minimal subset of
// Chat Completion parameters; extend via functional options without breaking
// callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	// SystemPrompt is prepended as a system message when non-empty.
	SystemPrompt string
}

// Invoker wraps the OpenAI Chat Completions API behind core.Invoker.
type Invoker struct {
	client *openai.Client
	opts   Options
}

var _ core.Invoker = (*Invoker)(nil)

// New creates an invoker using the official client with its default
// environment-based configuration.
func New(optFns ...func(o *Options)) *Invoker {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates an invoker from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Invoker {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Invoker{client: client, opts: opts}
}

// Invoke implements core.Invoker with a non-streaming completion.
func (i *Invoker) Invoke(ctx context.Context, payload any) (any, error) {
	prompt := provider.PayloadText(payload)

	var messages []openai.ChatCompletionMessageParamUnion
	if i.opts.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(i.opts.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := i.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               i.opts.Model,
		Temperature:         openai.Float(i.opts.Temperature),
		MaxCompletionTokens: openai.Int(i.opts.MaxCompletionTokens),
	})
	if err != nil {
		return nil, classify(fmt.Errorf("openai api error: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai api returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// classify marks throttling and server-side failures transient so the task
// engine retries them; client errors stay permanent.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode >= 500 {
			return core.Transient(err)
		}
		return err
	}
	// Transport-level failures (no HTTP response) are worth a retry.
	return core.Transient(err)
}
