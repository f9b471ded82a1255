package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

type stubProvider struct {
	id    string
	err   error
	calls int
	seen  []string
}

func (s *stubProvider) ID() string   { return s.id }
func (s *stubProvider) Name() string { return s.id }
func (s *stubProvider) HealthCheck(context.Context) error {
	return s.err
}
func (s *stubProvider) Chat(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
	s.calls++
	s.seen = append(s.seen, req.Purpose)
	if s.err != nil {
		return nil, s.err
	}
	return &ChatResponse{Content: s.id}, nil
}

func TestRouterFallsBack(t *testing.T) {
	r := NewRouter(zap.NewNop())
	primary := &stubProvider{id: "openrouter", err: errors.New("boom")}
	backup := &stubProvider{id: "anthropic"}
	r.Register(primary)
	r.Register(backup)
	r.Bind(PurposeClassify, "openrouter")
	r.SetFallbacks(PurposeClassify, []string{"openrouter", "anthropic"})

	resp, err := r.Route(context.Background(), PurposeClassify, &ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "anthropic" {
		t.Errorf("got %q, want anthropic", resp.Content)
	}
	if primary.calls != 1 {
		t.Errorf("primary called %d times, want 1", primary.calls)
	}
	if backup.seen[0] != PurposeClassify {
		t.Errorf("purpose not propagated: %v", backup.seen)
	}
}

func TestRouterAllFail(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.Register(&stubProvider{id: "a", err: errors.New("down")})
	r.SetFallbacks(PurposeAnalyze, []string{"missing"})

	if _, err := r.Route(context.Background(), PurposeAnalyze, &ChatRequest{}); err == nil {
		t.Fatal("expected error when every provider fails")
	}
}

func TestRouterEmpty(t *testing.T) {
	r := NewRouter(zap.NewNop())
	if !r.Empty() {
		t.Fatal("new router should be empty")
	}
	if _, err := r.Route(context.Background(), PurposeAnalyze, &ChatRequest{}); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
}

func TestOpenAIChatSendsImages(t *testing.T) {
	var got map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer k" {
			t.Errorf("got auth %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "x",
			"model": "m",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "{\"classification\":\"error\"}"}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewOpenAIProvider(ProviderConfig{
		ID:       "openrouter",
		Type:     "openrouter",
		Endpoint: srv.URL,
		APIKey:   "k",
		Models:   map[string]string{PurposeClassify: "vision-small"},
	}, zap.NewNop())

	resp, err := p.Chat(context.Background(), &ChatRequest{
		Purpose: PurposeClassify,
		Messages: []Message{{
			Role:    "user",
			Content: "classify",
			Images:  []Image{{MIMEType: "image/png", Data: []byte{1, 2, 3}}},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(resp.Content, "error") {
		t.Errorf("got content %q", resp.Content)
	}
	if got["model"] != "vision-small" {
		t.Errorf("got model %v, want vision-small", got["model"])
	}
	msgs := got["messages"].([]interface{})
	parts := msgs[0].(map[string]interface{})["content"].([]interface{})
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
	img := parts[0].(map[string]interface{})["image_url"].(map[string]interface{})
	if !strings.HasPrefix(img["url"].(string), "data:image/png;base64,") {
		t.Errorf("unexpected image url %v", img["url"])
	}
	if img["detail"] != "low" {
		t.Errorf("got detail %v, want low", img["detail"])
	}
}

func TestOpenAIChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(ProviderConfig{ID: "o", Endpoint: srv.URL}, zap.NewNop())
	_, err := p.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}

func TestAnthropicConvertRequest(t *testing.T) {
	p := NewAnthropicProvider(ProviderConfig{ID: "anthropic"}, zap.NewNop())
	ar := p.convertRequest(&ChatRequest{
		Purpose: PurposeAnalyze,
		Messages: []Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "look", Images: []Image{{Data: []byte("png")}}},
		},
	})
	if ar.System != "be brief" {
		t.Errorf("got system %q", ar.System)
	}
	if ar.Model != anthropicModels[PurposeAnalyze] {
		t.Errorf("got model %q", ar.Model)
	}
	if ar.MaxTokens != 4096 {
		t.Errorf("got max tokens %d", ar.MaxTokens)
	}
	blocks := ar.Messages[0].Content
	if len(blocks) != 2 || blocks[0].Type != "image" || blocks[1].Type != "text" {
		t.Fatalf("unexpected blocks %+v", blocks)
	}
	if blocks[0].Source.MediaType != "image/png" {
		t.Errorf("got media type %q", blocks[0].Source.MediaType)
	}
}
