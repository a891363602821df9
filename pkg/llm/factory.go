package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/partsbench/partsbench-engine/pkg/config"
)

// NewFromConfig creates the client selected by the AI configuration.
// Returns (nil, nil) when no provider is configured; callers treat a nil
// client as "insights run on heuristics only".
func NewFromConfig(cfg config.AIConfig, logger *zap.Logger) (Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	clientCfg := &Config{
		Endpoint: cfg.Endpoint,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(clientCfg, logger)
	case "anthropic":
		return NewAnthropicClient(clientCfg, logger)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}
