package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates, strips
// comments, unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand env templates before stripping, since templates live in strings.
	expanded := expandEnvTemplates(string(data))

	standard, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standard, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with all defaults applied and no providers.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.History.Backend == "" {
		cfg.History.Backend = "file"
	}
	if cfg.History.Dir == "" {
		cfg.History.Dir = filepath.Join(LoomPath(), "threads")
	}
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18520
	}
	if cfg.Defaults.MaxTurns == 0 {
		cfg.Defaults.MaxTurns = 100
	}
	if cfg.Defaults.MaxLLMCalls == 0 {
		cfg.Defaults.MaxLLMCalls = 1000
	}
	// Auth resolution is deferred to models.ResolveAuth() at model init time.
}
