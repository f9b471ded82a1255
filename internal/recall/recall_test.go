package recall

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/clippy/internal/activity"
	"github.com/nidhogg/clippy/internal/capture"
	"github.com/nidhogg/clippy/internal/provider"
	"github.com/nidhogg/clippy/internal/vectorstore"
)

type fakeChat struct {
	content string
	err     error
	purpose string
	req     *provider.ChatRequest
}

func (f *fakeChat) Route(_ context.Context, purpose string, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	f.purpose = purpose
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &provider.ChatResponse{Content: f.content}, nil
}

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

type fakeIndex struct {
	ensured map[string]uint64
	points  []vectorstore.Point
	query   vectorstore.Query
	results []*vectorstore.SearchResult
}

func (f *fakeIndex) EnsureCollection(_ context.Context, name string, dim uint64) error {
	if f.ensured == nil {
		f.ensured = map[string]uint64{}
	}
	f.ensured[name] = dim
	return nil
}

func (f *fakeIndex) Upsert(_ context.Context, _ string, p vectorstore.Point) error {
	f.points = append(f.points, p)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ string, _ []float32, q vectorstore.Query) ([]*vectorstore.SearchResult, error) {
	f.query = q
	return f.results, nil
}

var at = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func batch() capture.Batch {
	return capture.Batch{ID: "b-1", Seq: 4, Frames: []*capture.Frame{
		{Data: []byte("old"), CapturedAt: at.Add(-time.Second)},
		{Data: []byte("new"), CapturedAt: at},
	}}
}

func TestRemember(t *testing.T) {
	chat := &fakeChat{content: "  VS Code showing a nil pointer panic in main.go.  "}
	idx := &fakeIndex{}
	r := New(chat, &fakeEmbedder{}, idx, Config{}, zap.NewNop())

	if err := r.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if idx.ensured[vectorstore.DefaultCollection] != defaultDimension {
		t.Errorf("ensured = %v", idx.ensured)
	}

	id, err := r.Remember(context.Background(), batch(), activity.LabelError, 0.9)
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if id == "" || len(idx.points) != 1 {
		t.Fatalf("id=%q points=%d", id, len(idx.points))
	}
	if chat.purpose != provider.PurposeDescribe || chat.req.MaxTokens != 150 {
		t.Errorf("purpose=%q max=%d", chat.purpose, chat.req.MaxTokens)
	}
	if imgs := chat.req.Messages[0].Images; len(imgs) != 1 || string(imgs[0].Data) != "new" {
		t.Error("should describe only the latest frame")
	}
	p := idx.points[0]
	if p.Payload["classification"] != "error" || p.Payload["batch_id"] != "b-1" {
		t.Errorf("payload = %v", p.Payload)
	}
	if p.Payload["description"] != "VS Code showing a nil pointer panic in main.go." {
		t.Errorf("description = %q", p.Payload["description"])
	}
}

func TestRememberFailures(t *testing.T) {
	idx := &fakeIndex{}
	r := New(&fakeChat{err: errors.New("down")}, &fakeEmbedder{}, idx, Config{}, zap.NewNop())
	if _, err := r.Remember(context.Background(), batch(), activity.LabelCode, 0.5); err == nil {
		t.Error("expected describe error")
	}
	if _, err := r.Remember(context.Background(), capture.Batch{}, activity.LabelCode, 0.5); !errors.Is(err, ErrNoFrame) {
		t.Errorf("empty batch: %v", err)
	}
	r = New(&fakeChat{content: "   "}, &fakeEmbedder{}, idx, Config{}, zap.NewNop())
	if _, err := r.Remember(context.Background(), batch(), activity.LabelCode, 0.5); err == nil {
		t.Error("expected error on blank description")
	}
	if len(idx.points) != 0 {
		t.Errorf("nothing should be stored, got %d", len(idx.points))
	}
}

func TestSearch(t *testing.T) {
	idx := &fakeIndex{results: []*vectorstore.SearchResult{{
		ID:    "p1",
		Score: 0.83,
		Payload: map[string]string{
			"description":    "terminal with failing tests",
			"classification": "error",
			"captured_at":    "2026-01-01T09:00:00Z",
		},
	}}}
	r := New(&fakeChat{}, &fakeEmbedder{}, idx, Config{TopK: 3, MinScore: 0.2}, zap.NewNop())

	hits, err := r.Search(context.Background(), "failing tests", 0, "error")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Description != "terminal with failing tests" {
		t.Fatalf("hits = %+v", hits)
	}
	if !hits[0].CapturedAt.Equal(at) {
		t.Errorf("captured_at = %v", hits[0].CapturedAt)
	}
	if idx.query.Limit != 3 || idx.query.MinScore != 0.2 || idx.query.Match["classification"] != "error" {
		t.Errorf("query = %+v", idx.query)
	}
	if out := FormatHits(hits); !strings.Contains(out, "[error]") {
		t.Errorf("format = %q", out)
	}

	if hits, err := r.Search(context.Background(), "  ", 0, ""); err != nil || hits != nil {
		t.Errorf("blank query: %v %v", hits, err)
	}
}
