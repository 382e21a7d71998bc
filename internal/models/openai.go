package models

import (
	"context"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/loom/internal/config"
)

const defaultOpenAITimeout = 60 * time.Second

// NewOpenAI creates an OpenAI ChatModel via the eino-ext adapter.
func NewOpenAI(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	modelConfig := &einoopenai.ChatModelConfig{
		APIKey:      auth.Value,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		Timeout:     timeoutOrDefault(cfg, defaultOpenAITimeout),
		Temperature: optFloat32(cfg.Options, "temperature"),
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelConfig.MaxCompletionTokens = &maxTokens
	}
	return einoopenai.NewChatModel(ctx, modelConfig)
}
