// Package openai adapts OpenAI's chat completion API to the oracle
// interface.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/nortide/regflow/graph/oracle"
)

// Oracle implements oracle.Oracle using OpenAI's Chat Completions API.
//
// Safe for concurrent use; the underlying client handles thread-safety
// internally.
//
// Example usage:
//
//	orc, err := openai.New(os.Getenv("OPENAI_API_KEY"), "gpt-4o")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := orc.Invoke(ctx, prompt)
type Oracle struct {
	client *openai.Client
	model  string
}

// New creates a GPT-backed oracle.
//
// Parameters:
//   - apiKey: OpenAI API key
//   - model: model to use (e.g., "gpt-4o", "gpt-4-turbo")
//
// Returns an error if apiKey or model is empty.
func New(apiKey, model string) (*Oracle, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if model == "" {
		return nil, errors.New("model cannot be empty")
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &Oracle{
		client: &client,
		model:  model,
	}, nil
}

// Invoke sends the prompt as a single user message and returns the first
// choice's content.
//
// Transient failures (rate limits, 5xx, network errors) wrap
// oracle.ErrUnavailable; context cancellation propagates unchanged.
func (o *Oracle) Invoke(ctx context.Context, prompt string) (oracle.Result, error) {
	if err := ctx.Err(); err != nil {
		return oracle.Result{}, err
	}

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(prompt),
					},
				},
			},
		},
	})
	if err != nil {
		return oracle.Result{}, classify(err)
	}

	if len(completion.Choices) == 0 {
		return oracle.Result{}, fmt.Errorf("openai: empty response: %w", oracle.ErrUnavailable)
	}

	return oracle.Result{
		Text:      completion.Choices[0].Message.Content,
		TokensIn:  int(completion.Usage.PromptTokens),
		TokensOut: int(completion.Usage.CompletionTokens),
		Model:     o.model,
	}, nil
}

// classify maps SDK errors onto the oracle error taxonomy.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "429"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection"):
		return fmt.Errorf("openai: %v: %w", err, oracle.ErrUnavailable)
	}
	return fmt.Errorf("openai: %w", err)
}
