// Package google adapts Google's Gemini API to the oracle interface.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/nortide/regflow/graph/oracle"
)

// Oracle implements oracle.Oracle using Google's Gemini models.
//
// Safe for concurrent use after creation. Close should be called when the
// oracle is no longer needed to release the underlying gRPC connection.
//
// Example usage:
//
//	orc, err := google.New(ctx, os.Getenv("GOOGLE_API_KEY"), "gemini-1.5-pro")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer orc.Close()
type Oracle struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
}

// New creates a Gemini-backed oracle.
//
// Parameters:
//   - ctx: context for client initialization
//   - apiKey: Google AI API key (from https://aistudio.google.com/)
//   - model: model name (e.g., "gemini-1.5-pro", "gemini-1.5-flash")
func New(ctx context.Context, apiKey, model string) (*Oracle, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if model == "" {
		return nil, errors.New("model cannot be empty")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Oracle{
		client: client,
		model:  client.GenerativeModel(model),
		name:   model,
	}, nil
}

// Invoke sends the prompt and returns the concatenated text parts of the
// first candidate.
//
// Transient failures (rate limits, 5xx, network errors) wrap
// oracle.ErrUnavailable; context cancellation propagates unchanged.
func (o *Oracle) Invoke(ctx context.Context, prompt string) (oracle.Result, error) {
	resp, err := o.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return oracle.Result{}, classify(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return oracle.Result{}, fmt.Errorf("google: empty response: %w", oracle.ErrUnavailable)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	res := oracle.Result{Text: text.String(), Model: o.name}
	if resp.UsageMetadata != nil {
		res.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		res.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return res, nil
}

// Close releases the underlying client connection.
func (o *Oracle) Close() error {
	return o.client.Close()
}

// classify maps SDK errors onto the oracle error taxonomy.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "resource exhausted"),
		strings.Contains(msg, "quota"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "unavailable"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection"):
		return fmt.Errorf("google: %v: %w", err, oracle.ErrUnavailable)
	}
	return fmt.Errorf("google: %w", err)
}
