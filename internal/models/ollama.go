package models

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/loom/internal/config"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaTimeout = 300 * time.Second
)

// NewOllama creates an Ollama ChatModel via the eino-ext adapter.
func NewOllama(ctx context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	timeout := timeoutOrDefault(cfg, defaultOllamaTimeout)

	opts := &einoollama.Options{}
	opts.NumCtx = optInt(cfg.Options, "num_ctx")
	if cfg.MaxTokens > 0 {
		opts.NumPredict = cfg.MaxTokens
	}
	if temp := optFloat32(cfg.Options, "temperature"); temp != nil {
		opts.Temperature = *temp
	}
	if topP := optFloat32(cfg.Options, "top_p"); topP != nil {
		opts.TopP = *topP
	}

	return einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{
		BaseURL: baseURL,
		Model:   cfg.Model,
		Timeout: timeout,
		Options: opts,
		// Reverse proxies in front of Ollama can answer with plain text
		// errors that the SDK would otherwise report as JSON parse failures.
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: &ollamaTransport{inner: http.DefaultTransport, provider: "ollama"},
		},
	})
}

// ollamaTransport wraps an http.RoundTripper to detect non-JSON error
// responses from Ollama backends.
type ollamaTransport struct {
	inner    http.RoundTripper
	provider string
}

func (t *ollamaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, &ErrModelUnavailable{Provider: t.provider, Cause: err}
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &ErrModelUnavailable{
			Provider: t.provider,
			Body:     strings.TrimSpace(string(body)),
		}
	}

	// Ollama sends application/x-ndjson for streaming, application/json
	// otherwise. Anything else is a proxy error page.
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "json") && !strings.Contains(ct, "ndjson") {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &ErrModelUnavailable{
			Provider: t.provider,
			Body:     strings.TrimSpace(string(body)),
		}
	}

	return resp, nil
}
