package provider

import (
	"context"
	"time"
)

// Provider defines the interface for vision-language model backends.
type Provider interface {
	ID() string
	Name() string
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	HealthCheck(ctx context.Context) error
}

// Purposes select a model from the provider's configured model table.
const (
	PurposeClassify = "classify"
	PurposeAnalyze  = "analyze"
	PurposeDescribe = "describe"
)

// ChatRequest represents a request to a model provider.
type ChatRequest struct {
	Model       string    `json:"model,omitempty"`
	Purpose     string    `json:"-"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message represents a chat message. Images are sent before the text part.
type Message struct {
	Role    string  `json:"role"`
	Content string  `json:"content"`
	Images  []Image `json:"-"`
}

// Image is an encoded image attached to a message.
type Image struct {
	MIMEType string
	Data     []byte
}

// ChatResponse represents a response from a model provider.
type ChatResponse struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderConfig holds configuration for a provider instance.
type ProviderConfig struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Models   map[string]string `json:"models,omitempty"` // purpose -> model
	Extra    map[string]string `json:"extra,omitempty"`
	Timeout  time.Duration     `json:"timeout,omitempty"`
}

// modelFor picks the model for a request: explicit model, then the purpose
// entry, then the "default" entry, then the provider's built-in fallback.
func (c ProviderConfig) modelFor(req *ChatRequest, fallback map[string]string) string {
	if req.Model != "" {
		return req.Model
	}
	if m := c.Models[req.Purpose]; m != "" {
		return m
	}
	if m := c.Models["default"]; m != "" {
		return m
	}
	if m := fallback[req.Purpose]; m != "" {
		return m
	}
	return fallback["default"]
}
