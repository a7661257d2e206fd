// Package llm wraps the text generation providers used for intent
// classification and proposal copy.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("llm returned an empty response")

// Request is a single-turn generation. When JSONSchema is set the provider is
// asked for a JSON document matching it.
type Request struct {
	Prompt     string
	JSONSchema map[string]any
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Options selects and configures a provider.
type Options struct {
	Provider     string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
}

// New builds the configured provider.
func New(ctx context.Context, opts Options) (Generator, error) {
	switch opts.Provider {
	case "", "gemini":
		return NewGemini(ctx, opts.GeminiAPIKey, opts.GeminiModel)
	case "openai":
		return NewOpenAI(opts.OpenAIAPIKey, opts.OpenAIModel, ""), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
	}
}
