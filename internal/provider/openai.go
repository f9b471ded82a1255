package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// OpenRouterEndpoint is the OpenAI-compatible OpenRouter API base.
const OpenRouterEndpoint = "https://openrouter.ai/api/v1"

var openRouterModels = map[string]string{
	PurposeClassify: "openai/gpt-4o-mini",
	PurposeAnalyze:  "anthropic/claude-3.5-sonnet",
	PurposeDescribe: "openai/gpt-4o-mini",
	"default":       "openai/gpt-4o-mini",
}

var openAIModels = map[string]string{
	"default": "gpt-4o-mini",
}

// OpenAIProvider implements the Provider interface for OpenAI-compatible APIs
// (OpenAI, OpenRouter, local gateways).
type OpenAIProvider struct {
	config ProviderConfig
	models map[string]string
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(cfg ProviderConfig, logger *zap.Logger) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	models := openAIModels
	if cfg.Type == "openrouter" {
		models = openRouterModels
		if cfg.Endpoint == "" {
			cfg.Endpoint = OpenRouterEndpoint
		}
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		config: cfg,
		models: models,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *OpenAIProvider) ID() string   { return p.config.ID }
func (p *OpenAIProvider) Name() string { return p.config.Name }

// openAI-specific request/response types
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

// openAIMessage content is a plain string, or a part list when images are attached.
type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type openAIPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIChatResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   Usage          `json:"usage"`
}

type openAIChoice struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

func (p *OpenAIProvider) convertRequest(req *ChatRequest) *openAIRequest {
	detail := p.config.Extra["image_detail"]
	if detail == "" {
		detail = "low"
	}
	out := &openAIRequest{
		Model:       p.config.modelFor(req, p.models),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, m := range req.Messages {
		if len(m.Images) == 0 {
			out.Messages = append(out.Messages, openAIMessage{Role: m.Role, Content: m.Content})
			continue
		}
		parts := make([]openAIPart, 0, len(m.Images)+1)
		for _, img := range m.Images {
			parts = append(parts, openAIPart{
				Type: "image_url",
				ImageURL: &openAIImageURL{
					URL:    dataURL(img),
					Detail: detail,
				},
			})
		}
		if m.Content != "" {
			parts = append(parts, openAIPart{Type: "text", Text: m.Content})
		}
		out.Messages = append(out.Messages, openAIMessage{Role: m.Role, Content: parts})
	}
	return out
}

func dataURL(img Image) string {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Chat sends a non-streaming chat request.
func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(p.convertRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.Endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	if ref := p.config.Extra["referer"]; ref != "" {
		httpReq.Header.Set("HTTP-Referer", ref)
	}
	if title := p.config.Extra["title"]; title != "" {
		httpReq.Header.Set("X-Title", title)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var oaiResp openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from provider")
	}

	choice := oaiResp.Choices[0]
	p.logger.Debug("chat completed",
		zap.String("provider", p.config.ID),
		zap.String("model", oaiResp.Model),
		zap.Int("tokens", oaiResp.Usage.TotalTokens))
	return &ChatResponse{
		ID:           oaiResp.ID,
		Model:        oaiResp.Model,
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        oaiResp.Usage,
	}, nil
}

// HealthCheck verifies the provider is reachable.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.config.Endpoint+"/models", nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error %d", resp.StatusCode)
	}
	return nil
}
