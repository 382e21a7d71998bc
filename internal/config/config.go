// Package config loads loom's JSONC configuration.
package config

import "time"

// Config is the root configuration for loom.
type Config struct {
	Models   ModelsConfig   `json:"models"`
	Events   EventsConfig   `json:"events"`
	History  HistoryConfig  `json:"history"`
	Gateway  GatewayConfig  `json:"gateway"`
	Defaults DefaultsConfig `json:"defaults"`
}

// ModelsConfig holds model provider configuration.
type ModelsConfig struct {
	Default   string                    `json:"default"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver    string         `json:"driver"` // "anthropic", "openai", "ollama"
	Model     string         `json:"model"`
	BaseURL   string         `json:"base_url,omitempty"`
	Auth      AuthConfig     `json:"auth"`
	MaxTokens int            `json:"max_tokens,omitempty"`
	Timeout   Duration       `json:"timeout,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// AuthConfig configures credential resolution.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty"` // Direct API key or ${{ .Env.VAR }} template
	Token  string `json:"token,omitempty"`   // OAuth/Bearer token
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// HistoryConfig selects the thread history backend.
type HistoryConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `json:"backend"`
	// Dir is the storage root for the file backend (default:
	// $LOOM_PATH/threads) and the database directory for sqlite.
	Dir string `json:"dir,omitempty"`
}

// GatewayConfig holds the inspection server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DefaultsConfig holds fallback values for runs that do not set their own.
type DefaultsConfig struct {
	AgentName         string `json:"agent_name,omitempty"`
	AgentInstructions string `json:"agent_instructions,omitempty"`
	Model             string `json:"model,omitempty"`
	MaxTurns          int    `json:"max_turns,omitempty"`
	MaxLLMCalls       int    `json:"max_llm_calls,omitempty"`
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
