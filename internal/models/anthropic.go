package models

import (
	"context"

	einoclaude "github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/loom/internal/config"
)

const defaultAnthropicMaxTokens = 8192

// NewAnthropic creates a Claude ChatModel via the eino-ext adapter.
func NewAnthropic(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	modelConfig := &einoclaude.Config{
		APIKey:      auth.Value,
		Model:       cfg.Model,
		MaxTokens:   maxTokens,
		Temperature: optFloat32(cfg.Options, "temperature"),
		TopP:        optFloat32(cfg.Options, "top_p"),
	}
	if cfg.BaseURL != "" {
		baseURL := cfg.BaseURL
		modelConfig.BaseURL = &baseURL
	}
	return einoclaude.NewChatModel(ctx, modelConfig)
}
