// Package anthropic adapts Anthropic's Claude API to the oracle interface.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nortide/regflow/graph/oracle"
)

// DefaultMaxTokens caps the response length when the caller does not
// override it.
const DefaultMaxTokens = 4096

// Oracle implements oracle.Oracle using Anthropic's Messages API.
//
// Oracle is safe for concurrent use after creation; the underlying SDK
// client handles concurrent requests safely.
//
// Example usage:
//
//	orc := anthropic.New(os.Getenv("ANTHROPIC_API_KEY"), "claude-3-5-sonnet-20241022")
//	res, err := orc.Invoke(ctx, prompt)
type Oracle struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// New creates a Claude-backed oracle with the given API key and model.
// The API key can be obtained from https://console.anthropic.com/
func New(apiKey, model string) *Oracle {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Oracle{
		client:    &client,
		model:     model,
		maxTokens: DefaultMaxTokens,
	}
}

// WithMaxTokens overrides the response token cap.
func (o *Oracle) WithMaxTokens(n int64) *Oracle {
	o.maxTokens = n
	return o
}

// Invoke sends the prompt as a single user message and returns the
// concatenated text blocks of the response.
//
// Transient failures (rate limits, overload, network errors) wrap
// oracle.ErrUnavailable; context cancellation propagates unchanged.
func (o *Oracle) Invoke(ctx context.Context, prompt string) (oracle.Result, error) {
	message, err := o.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(o.model),
		MaxTokens: o.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return oracle.Result{}, classify(err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return oracle.Result{
		Text:      text.String(),
		TokensIn:  int(message.Usage.InputTokens),
		TokensOut: int(message.Usage.OutputTokens),
		Model:     o.model,
	}, nil
}

// classify maps SDK errors onto the oracle error taxonomy. Rate limits,
// overload, and transport failures are transient; authentication and
// malformed-request errors are not.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "overloaded"),
		strings.Contains(msg, "529"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection"):
		return fmt.Errorf("anthropic: %v: %w", err, oracle.ErrUnavailable)
	}
	return fmt.Errorf("anthropic: %w", err)
}
