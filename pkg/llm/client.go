// Package llm wraps the hosted model providers used for inventory insights.
// Callers treat every provider failure as an unavailable upstream; the
// insight layer degrades to heuristics rather than surfacing these errors.
package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/partsbench/partsbench-engine/pkg/apperrors"
)

// Client is a minimal completion interface over a hosted model.
type Client interface {
	// Complete sends a system message and user prompt, returning the
	// model's text response.
	Complete(ctx context.Context, systemMessage, prompt string) (string, error)
	Provider() string
}

// Config carries provider connection settings.
type Config struct {
	Endpoint string // base URL override, empty for the provider default
	Model    string
	APIKey   string
}

const defaultMaxTokens = 1024

type openAIClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIClient creates a client for OpenAI or any OpenAI-compatible
// endpoint (Ollama, vLLM, LM Studio).
func NewOpenAIClient(cfg *Config, logger *zap.Logger) (Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}

	return &openAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		logger: logger.Named("llm.openai"),
	}, nil
}

var _ Client = (*openAIClient)(nil)

func (c *openAIClient) Complete(ctx context.Context, systemMessage, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: defaultMaxTokens,
	})
	if err != nil {
		c.logger.Warn("chat completion failed", zap.String("model", c.model), zap.Error(err))
		return "", fmt.Errorf("%w: openai completion: %v", apperrors.ErrUpstreamUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", apperrors.ErrUpstreamUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *openAIClient) Provider() string { return "openai" }
