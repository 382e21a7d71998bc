package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/loom/internal/config"
)

// CreateModel builds a chat model from a provider config. Anthropic and
// OpenAI resolve credentials first; Ollama talks to a local daemon without
// auth.
func CreateModel(ctx context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	switch strings.ToLower(cfg.Driver) {
	case "anthropic":
		auth, err := ResolveAuth(cfg)
		if err != nil {
			return nil, fmt.Errorf("resolve auth: %w", err)
		}
		return NewAnthropic(ctx, cfg, auth)
	case "openai":
		auth, err := ResolveAuth(cfg)
		if err != nil {
			return nil, fmt.Errorf("resolve auth: %w", err)
		}
		return NewOpenAI(ctx, cfg, auth)
	case "ollama":
		return NewOllama(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown driver: %s", cfg.Driver)
	}
}

// timeoutOrDefault returns the configured request timeout, or fallback when
// the config leaves it unset.
func timeoutOrDefault(cfg config.ProviderConfig, fallback time.Duration) time.Duration {
	if d := cfg.Timeout.Duration(); d > 0 {
		return d
	}
	return fallback
}

// optFloat32 reads a numeric provider option, nil when absent. The options
// map comes from JSON, so numbers arrive as float64.
func optFloat32(opts map[string]any, key string) *float32 {
	if v, ok := opts[key].(float64); ok {
		f := float32(v)
		return &f
	}
	return nil
}

// optInt reads an integer provider option, zero when absent.
func optInt(opts map[string]any, key string) int {
	if v, ok := opts[key].(float64); ok {
		return int(v)
	}
	return 0
}
