package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/nidhogg/clippy/internal/activity"
	"github.com/nidhogg/clippy/internal/capture"
	"github.com/nidhogg/clippy/internal/jsonrepair"
	"github.com/nidhogg/clippy/internal/provider"
)

// ErrUnparseable is returned when the analysis reply has no usable fields.
var ErrUnparseable = errors.New("agent: unparseable analysis")

// Chatter routes a chat request for a purpose; *provider.Router implements it.
type Chatter interface {
	Route(ctx context.Context, purpose string, req *provider.ChatRequest) (*provider.ChatResponse, error)
}

// Analysis is the decoded reply of the analyze model.
type Analysis struct {
	ShouldAssist bool   `json:"shouldAssist"`
	Suggestion   string `json:"suggestion"`
	Reasoning    string `json:"reasoning"`
}

// Analyzer sends a batch plus a kind-specific prompt to the analyze model.
type Analyzer struct {
	chat   Chatter
	logger *zap.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(chat Chatter, logger *zap.Logger) *Analyzer {
	return &Analyzer{chat: chat, logger: logger}
}

// Analyze asks the model whether kind should assist with batch.
func (a *Analyzer) Analyze(ctx context.Context, kind activity.AgentKind, batch capture.Batch, actx activity.Context) (Analysis, error) {
	req := &provider.ChatRequest{
		Messages:    buildMessages(kind, batch, actx),
		MaxTokens:   1000,
		Temperature: 0.7,
	}
	resp, err := a.chat.Route(ctx, provider.PurposeAnalyze, req)
	if err != nil {
		return Analysis{}, fmt.Errorf("analyze %s: %w", kind, err)
	}
	out, err := ParseAnalysis(resp.Content)
	if err != nil {
		return Analysis{}, fmt.Errorf("analyze %s: %w", kind, err)
	}
	a.logger.Debug("analysis complete",
		zap.String("kind", string(kind)),
		zap.Bool("should_assist", out.ShouldAssist),
		zap.String("reasoning", truncateStr(out.Reasoning, 100)))
	return out, nil
}

func buildMessages(kind activity.AgentKind, batch capture.Batch, actx activity.Context) []provider.Message {
	text := fmt.Sprintf("%s\n\nScreenshots are chronological (oldest first) and captured about one second apart.\n\nContext: %s",
		promptFor(kind), FormatContext(actx))
	return []provider.Message{{
		Role:    "user",
		Content: text,
		Images:  provider.BatchImages(batch),
	}}
}

type analysisDoc struct {
	ShouldAssist *bool  `json:"shouldAssist"`
	Suggestion   string `json:"suggestion"`
	Reasoning    string `json:"reasoning"`
}

var innerFenceRe = regexp.MustCompile("```(?:markdown|md)?[ \t]*\n?")

// ParseAnalysis decodes an analysis reply, falling back to field extraction
// when the reply is not a JSON document.
func ParseAnalysis(raw string) (Analysis, error) {
	var doc analysisDoc
	if err := jsonrepair.Decode(raw, &doc); err == nil && doc.ShouldAssist != nil {
		return Analysis{
			ShouldAssist: *doc.ShouldAssist,
			Suggestion:   cleanSuggestion(doc.Suggestion),
			Reasoning:    doc.Reasoning,
		}, nil
	}

	should, ok := jsonrepair.BoolField(raw, "shouldAssist")
	if !ok {
		return Analysis{}, ErrUnparseable
	}
	out := Analysis{ShouldAssist: should}
	if s, ok := jsonrepair.StringField(raw, "suggestion"); ok {
		out.Suggestion = cleanSuggestion(s)
	}
	if r, ok := jsonrepair.StringField(raw, "reasoning"); ok {
		out.Reasoning = r
	}
	return out, nil
}

func cleanSuggestion(s string) string {
	return strings.TrimSpace(innerFenceRe.ReplaceAllString(s, ""))
}

func truncateStr(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
