// Package embedding turns screenshot descriptions into vectors for recall.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config holds embedding provider configuration.
type Config struct {
	Provider  string        `json:"provider"` // "api" or "local"
	Endpoint  string        `json:"endpoint"`
	Model     string        `json:"model"`
	APIKey    string        `json:"api_key"`
	Dimension int           `json:"dimension"`
	Timeout   time.Duration `json:"timeout,omitempty"`
}

// Defaults for each provider kind.
const (
	DefaultAPIEndpoint   = "https://api.openai.com/v1"
	DefaultAPIModel      = "text-embedding-3-small"
	DefaultLocalEndpoint = "http://localhost:11434"
	DefaultLocalModel    = "nomic-embed-text"
)

// New builds the provider named by cfg.Provider, filling endpoint and model
// defaults.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "api":
		if cfg.Endpoint == "" {
			cfg.Endpoint = DefaultAPIEndpoint
		}
		if cfg.Model == "" {
			cfg.Model = DefaultAPIModel
		}
		return NewAPIProvider(cfg), nil
	case "local":
		if cfg.Endpoint == "" {
			cfg.Endpoint = DefaultLocalEndpoint
		}
		if cfg.Model == "" {
			cfg.Model = DefaultLocalModel
		}
		return NewLocalProvider(cfg), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}

func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// postJSON sends body to url and decodes a 200 response into out.
func postJSON(ctx context.Context, client *http.Client, url, apiKey string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("embedding: API returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("embedding: decode response: %w", err)
	}
	return nil
}
