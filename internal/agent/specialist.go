package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/clippy/internal/activity"
	"github.com/nidhogg/clippy/internal/capture"
)

// Fixed per-kind confidences.
const (
	DebugConfidence    = 0.8
	LearningConfidence = 0.7
	WritingConfidence  = 0.75
	ResearchConfidence = 0.7
)

// Specialist is an Agent backed by the shared Analyzer. Variants differ in
// prompt, title, confidence, an optional precondition and optional
// enrichment of the suggestion body.
type Specialist struct {
	kind       activity.AgentKind
	title      string
	confidence float64
	analyzer   *Analyzer
	ready      func(activity.Context) bool
	enricher   Enricher
	now        func() time.Time
	logger     *zap.Logger
}

// NewDebug handles batches classified as error.
func NewDebug(an *Analyzer, logger *zap.Logger) *Specialist {
	return &Specialist{
		kind:       activity.KindDebug,
		title:      "I noticed an error",
		confidence: DebugConfidence,
		analyzer:   an,
		now:        time.Now,
		logger:     logger,
	}
}

// NewLearning handles idle batches. The model is only consulted once the user
// has been idle for at least threshold.
func NewLearning(an *Analyzer, threshold time.Duration, logger *zap.Logger) *Specialist {
	return &Specialist{
		kind:       activity.KindLearning,
		title:      "Need help understanding this?",
		confidence: LearningConfidence,
		analyzer:   an,
		ready: func(actx activity.Context) bool {
			return actx.IdleTime >= threshold
		},
		now:    time.Now,
		logger: logger,
	}
}

// NewWriting handles writing batches.
func NewWriting(an *Analyzer, logger *zap.Logger) *Specialist {
	return &Specialist{
		kind:       activity.KindWriting,
		title:      "Writing Assistant",
		confidence: WritingConfidence,
		analyzer:   an,
		now:        time.Now,
		logger:     logger,
	}
}

// NewResearch handles research batches. enricher may be nil.
func NewResearch(an *Analyzer, enricher Enricher, logger *zap.Logger) *Specialist {
	return &Specialist{
		kind:       activity.KindResearch,
		title:      "Research Assistant",
		confidence: ResearchConfidence,
		analyzer:   an,
		enricher:   enricher,
		now:        time.Now,
		logger:     logger,
	}
}

// Kind returns the agent kind.
func (s *Specialist) Kind() activity.AgentKind { return s.kind }

// Analyze implements Agent.
func (s *Specialist) Analyze(ctx context.Context, batch capture.Batch, actx activity.Context) (activity.AgentResponse, error) {
	var none activity.AgentResponse
	if batch.Empty() {
		return none, nil
	}
	if s.ready != nil && !s.ready(actx) {
		s.logger.Debug("agent precondition not met",
			zap.String("kind", string(s.kind)),
			zap.Duration("idle", actx.IdleTime))
		return none, nil
	}

	result, err := s.analyzer.Analyze(ctx, s.kind, batch, actx)
	if err != nil {
		return none, err
	}
	if !result.ShouldAssist || result.Suggestion == "" {
		s.logger.Debug("agent declined", zap.String("kind", string(s.kind)))
		return activity.AgentResponse{Reasoning: result.Reasoning}, nil
	}

	body := result.Suggestion
	if s.enricher != nil {
		enriched, err := s.enricher.Enrich(ctx, body)
		if err != nil {
			s.logger.Warn("suggestion enrichment failed", zap.String("kind", string(s.kind)), zap.Error(err))
		} else {
			body = enriched
		}
	}

	at := s.now()
	if f := batch.Latest(); f != nil && !f.CapturedAt.IsZero() {
		at = f.CapturedAt
	}
	return activity.AgentResponse{
		ShouldAssist: true,
		Suggestion: &activity.Suggestion{
			Kind:       s.kind,
			Title:      s.title,
			Body:       body,
			Confidence: s.confidence,
			ProducedAt: at,
		},
		Reasoning: result.Reasoning,
	}, nil
}
