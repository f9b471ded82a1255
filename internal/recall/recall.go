// Package recall indexes described screenshots so past screens can be found
// by meaning. Each remembered batch stores one natural-language description
// of its latest frame.
package recall

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/clippy/internal/activity"
	"github.com/nidhogg/clippy/internal/capture"
	"github.com/nidhogg/clippy/internal/embedding"
	"github.com/nidhogg/clippy/internal/provider"
	"github.com/nidhogg/clippy/internal/vectorstore"
)

// ErrNoFrame is returned when a batch has nothing to describe.
var ErrNoFrame = errors.New("recall: batch has no frame")

// defaultDimension is used to create the collection before the embedder has
// reported its size.
const defaultDimension = 1536

// DescribePrompt asks the model for a short searchable description.
const DescribePrompt = `Describe what is on this screen in two or three sentences. Name the application, the file, page or document if visible, and any error text verbatim. Plain text only.`

// Chatter routes a chat request for a purpose; *provider.Router implements it.
type Chatter interface {
	Route(ctx context.Context, purpose string, req *provider.ChatRequest) (*provider.ChatResponse, error)
}

// Index is the vector store; *vectorstore.Client implements it.
type Index interface {
	EnsureCollection(ctx context.Context, name string, dimension uint64) error
	Upsert(ctx context.Context, collection string, p vectorstore.Point) error
	Search(ctx context.Context, collection string, vector []float32, q vectorstore.Query) ([]*vectorstore.SearchResult, error)
}

// Config tunes recall.
type Config struct {
	Collection string  `json:"collection"`
	TopK       int     `json:"top_k"`
	MinScore   float32 `json:"min_score"`
}

// Hit is one search result.
type Hit struct {
	ID             string    `json:"id"`
	Description    string    `json:"description"`
	Classification string    `json:"classification"`
	BatchID        string    `json:"batch_id,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
	Score          float32   `json:"score"`
}

// Recaller describes, embeds and indexes screenshots.
type Recaller struct {
	chat       Chatter
	embedder   embedding.Provider
	index      Index
	collection string
	topK       int
	minScore   float32
	logger     *zap.Logger
}

// New creates a Recaller.
func New(chat Chatter, embedder embedding.Provider, index Index, cfg Config, logger *zap.Logger) *Recaller {
	if cfg.Collection == "" {
		cfg.Collection = vectorstore.DefaultCollection
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &Recaller{
		chat:       chat,
		embedder:   embedder,
		index:      index,
		collection: cfg.Collection,
		topK:       cfg.TopK,
		minScore:   cfg.MinScore,
		logger:     logger,
	}
}

// Init ensures the collection exists.
func (r *Recaller) Init(ctx context.Context) error {
	dim := uint64(r.embedder.Dimension())
	if dim == 0 {
		dim = defaultDimension
	}
	if err := r.index.EnsureCollection(ctx, r.collection, dim); err != nil {
		return fmt.Errorf("init recall collection: %w", err)
	}
	return nil
}

// Remember describes the batch's latest frame and stores it under label.
// It returns the point ID.
func (r *Recaller) Remember(ctx context.Context, batch capture.Batch, label activity.Label, confidence float64) (string, error) {
	latest := batch.Latest()
	if latest == nil || len(latest.Data) == 0 {
		return "", ErrNoFrame
	}

	desc, err := r.describe(ctx, latest)
	if err != nil {
		return "", err
	}

	vectors, err := r.embedder.Embed(ctx, []string{desc})
	if err != nil {
		return "", fmt.Errorf("embed description: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return "", fmt.Errorf("empty embedding result")
	}

	id := uuid.New().String()
	err = r.index.Upsert(ctx, r.collection, vectorstore.Point{
		ID:     id,
		Vector: vectors[0],
		Payload: map[string]any{
			"description":    desc,
			"classification": string(label),
			"confidence":     confidence,
			"batch_id":       batch.ID,
			"batch_seq":      int64(batch.Seq),
			"captured_at":    latest.CapturedAt,
		},
	})
	if err != nil {
		return "", err
	}
	r.logger.Debug("screen remembered",
		zap.String("id", id),
		zap.String("batch", batch.ID),
		zap.String("label", string(label)))
	return id, nil
}

func (r *Recaller) describe(ctx context.Context, f *capture.Frame) (string, error) {
	resp, err := r.chat.Route(ctx, provider.PurposeDescribe, &provider.ChatRequest{
		Messages: []provider.Message{{
			Role:    "user",
			Content: DescribePrompt,
			Images:  []provider.Image{provider.FrameImage(f)},
		}},
		MaxTokens:   150,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("describe frame: %w", err)
	}
	desc := strings.TrimSpace(resp.Content)
	if desc == "" {
		return "", fmt.Errorf("describe frame: empty description")
	}
	return desc, nil
}

// Search embeds query and returns the closest remembered screens, best
// first. A non-empty label restricts hits to that classification.
func (r *Recaller) Search(ctx context.Context, query string, limit int, label string) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = r.topK
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	q := vectorstore.Query{Limit: uint64(limit), MinScore: r.minScore}
	if label != "" {
		q.Match = map[string]string{"classification": label}
	}
	results, err := r.index.Search(ctx, r.collection, vectors[0], q)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(results))
	for _, res := range results {
		h := Hit{
			ID:             res.ID,
			Description:    res.Payload["description"],
			Classification: res.Payload["classification"],
			BatchID:        res.Payload["batch_id"],
			Score:          res.Score,
		}
		if t, err := time.Parse(time.RFC3339, res.Payload["captured_at"]); err == nil {
			h.CapturedAt = t
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// FormatHits renders hits as a numbered list for the CLI.
func FormatHits(hits []Hit) string {
	if len(hits) == 0 {
		return "no matching screens"
	}
	var b strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. [%s] %s (score: %.2f)\n   %s\n",
			i+1, h.Classification, h.CapturedAt.Local().Format(time.DateTime), h.Score, h.Description)
	}
	return b.String()
}
