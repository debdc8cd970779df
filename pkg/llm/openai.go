package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
)

// OpenAIClient talks to OpenAI or an Azure OpenAI deployment.
type OpenAIClient struct {
	client   *openai.Client
	model    string
	provider string
}

func NewOpenAIClient(cfg Config) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	opts = append(opts, commonOptions(cfg)...)

	client := openai.NewClient(opts...)
	return &OpenAIClient{client: &client, model: cfg.Model, provider: ProviderOpenAI}
}

// NewAzureClient targets an Azure OpenAI resource. cfg.Model is the
// deployment name.
func NewAzureClient(cfg Config) *OpenAIClient {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAzureAPIVersion
	}
	opts := []option.RequestOption{
		azure.WithEndpoint(cfg.Endpoint, cfg.APIVersion),
		azure.WithAPIKey(cfg.APIKey),
	}
	opts = append(opts, commonOptions(cfg)...)

	client := openai.NewClient(opts...)
	return &OpenAIClient{client: &client, model: cfg.Model, provider: ProviderAzure}
}

func commonOptions(cfg Config) []option.RequestOption {
	var opts []option.RequestOption
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	return opts
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Completion, error) {
	req = req.withDefaults()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		return Completion{}, fmt.Errorf("%s API error: %w", c.provider, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Completion{}, fmt.Errorf("%s: %w", c.provider, ErrEmptyResponse)
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return Completion{
		Text:             resp.Choices[0].Message.Content,
		Provider:         c.provider,
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
