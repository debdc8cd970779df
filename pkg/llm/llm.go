// Package llm wraps chat-completion providers behind one Completer contract.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"

	DefaultMaxTokens   = 500
	DefaultTemperature = 0.4
	// DefaultAzureAPIVersion is used when no api_version is configured.
	DefaultAzureAPIVersion = "2024-12-01-preview"
)

var ErrEmptyResponse = errors.New("llm: provider returned no content")

// Request is a single system + user prompt exchange.
type Request struct {
	System      string  `json:"system"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// Completion is the provider answer plus accounting.
type Completion struct {
	Text             string `json:"text"`
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	Cached           bool   `json:"cached"`
}

// Completer produces a completion for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider   string
	APIKey     string
	Model      string // model name, or deployment name for azure
	Endpoint   string // azure resource endpoint or a custom base url
	APIVersion string
	Timeout    time.Duration
	MaxRetries int
}

// New builds the Completer for cfg.Provider.
func New(cfg Config) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key is required for provider %q", cfg.Provider)
	}
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIClient(cfg), nil
	case ProviderAzure:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("llm: azure endpoint is required")
		}
		return NewAzureClient(cfg), nil
	case ProviderAnthropic:
		return NewAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

func (r Request) withDefaults() Request {
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	if r.Temperature <= 0 {
		r.Temperature = DefaultTemperature
	}
	return r
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (Completion, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (Completion, error) {
	return f(ctx, req)
}
