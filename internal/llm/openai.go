package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const openAIDefaultModel = openai.ChatModelGPT4oMini

// OpenAIConfig holds configuration for the OpenAI engine.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string        // Optional (tests)
	Timeout    time.Duration // Per-call HTTP timeout
	MaxRetries int           // SDK transport retries
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAIEngine implements Engine using the official OpenAI SDK.
type OpenAIEngine struct {
	client openai.Client
	model  string
}

// NewOpenAIEngine creates an OpenAI-backed engine.
func NewOpenAIEngine(cfg OpenAIConfig) *OpenAIEngine {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIEngine{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

// Rewrite implements Engine via a chat completion.
func (e *OpenAIEngine) Rewrite(ctx context.Context, instructions, input string) (string, error) {
	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(e.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(instructions),
			openai.UserMessage(input),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai response has no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("openai output text is empty")
	}
	return text, nil
}
