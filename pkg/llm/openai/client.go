// Package openai implements llm.Provider on any OpenAI-compatible chat
// completions endpoint, including Qwen, DeepSeek and Ollama gateways.
package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/oceanbase/agentmem-go/pkg/llm"
)

const defaultModel = "gpt-4o-mini"

// Client is an OpenAI chat client.
type Client struct {
	client   *openai.Client
	model    string
	defaults []llm.GenerateOption
}

// Config is the configuration for the OpenAI chat client.
//
// Model defaults to gpt-4o-mini. Temperature and MaxTokens, when set, become
// the defaults of every call.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// NewClient creates a new OpenAI chat client.
//
// Args:
//   - cfg: API key (required), model, base URL and default sampling settings
//
// Returns:
//   - *Client: chat client instance
//   - error: when the API key is missing
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("NewOpenAIClient: api key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	var defaults []llm.GenerateOption
	if cfg.Temperature > 0 {
		defaults = append(defaults, llm.WithTemperature(cfg.Temperature))
	}
	if cfg.MaxTokens > 0 {
		defaults = append(defaults, llm.WithMaxTokens(cfg.MaxTokens))
	}

	return &Client{
		client:   openai.NewClientWithConfig(config),
		model:    model,
		defaults: defaults,
	}, nil
}

// Generate answers a single user prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return c.GenerateWithMessages(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

// GenerateWithMessages answers a conversation.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(append(append([]llm.GenerateOption{}, c.defaults...), opts...))

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMessages,
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
		TopP:        float32(options.TopP),
		Stop:        options.Stop,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", llm.ErrGeneration, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", llm.ErrGeneration)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: empty reply", llm.ErrGeneration)
	}
	return content, nil
}

// Close is a no-op; the SDK client holds no resources.
func (c *Client) Close() error {
	return nil
}
