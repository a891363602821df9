package llm

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/partsbench/partsbench-engine/pkg/apperrors"
)

type anthropicClient struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// NewAnthropicClient creates a client for the Anthropic Messages API.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	var opts []anthropic.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.Endpoint, "/")))
	}

	return &anthropicClient{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		model:  cfg.Model,
		logger: logger.Named("llm.anthropic"),
	}, nil
}

var _ Client = (*anthropicClient)(nil)

func (c *anthropicClient) Complete(ctx context.Context, systemMessage, prompt string) (string, error) {
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:  anthropic.Model(c.model),
		System: systemMessage,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(prompt),
		},
		MaxTokens: defaultMaxTokens,
	})
	if err != nil {
		c.logger.Warn("messages request failed", zap.String("model", c.model), zap.Error(err))
		return "", fmt.Errorf("%w: anthropic completion: %v", apperrors.ErrUpstreamUnavailable, err)
	}

	text := resp.GetFirstContentText()
	if text == "" {
		return "", fmt.Errorf("%w: anthropic returned no text content", apperrors.ErrUpstreamUnavailable)
	}
	return text, nil
}

func (c *anthropicClient) Provider() string { return "anthropic" }
