// Package router runs one classify-then-analyze cycle for a frame batch.
// It never returns an error: the worst outcome is silence.
package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nidhogg/clippy/internal/activity"
	"github.com/nidhogg/clippy/internal/agent"
	"github.com/nidhogg/clippy/internal/capture"
	"github.com/nidhogg/clippy/internal/classify"
)

// Outcome is the routed response plus the agent that produced it. Agent is
// empty when no agent ran.
type Outcome struct {
	activity.AgentResponse
	Agent activity.AgentKind `json:"agent,omitempty"`
}

// Option configures a Router.
type Option func(*Router)

// WithStrictInvariants makes the Router panic on invariant violations such
// as an empty batch instead of returning NoAssist.
func WithStrictInvariants() Option {
	return func(r *Router) { r.strict = true }
}

// Router resolves a batch to an Outcome.
type Router struct {
	classifier classify.Client
	registry   *agent.Registry
	strict     bool
	logger     *zap.Logger
}

// New creates a Router.
func New(classifier classify.Client, registry *agent.Registry, logger *zap.Logger, opts ...Option) *Router {
	r := &Router{
		classifier: classifier,
		registry:   registry,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route classifies batch and, for handled non-normal labels, asks the bound
// agent for a suggestion.
func (r *Router) Route(ctx context.Context, batch capture.Batch, actx activity.Context) (out Outcome) {
	if batch.Empty() {
		if r.strict {
			panic("router: route called with empty batch")
		}
		r.logger.Warn("route called with empty batch")
		return Outcome{AgentResponse: activity.NoAssist(activity.LabelNormal, 0)}
	}

	label := activity.LabelNormal
	confidence := 0.0
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("route panicked",
				zap.String("batch", batch.ID),
				zap.String("panic", fmt.Sprint(p)))
			out = Outcome{AgentResponse: activity.NoAssist(label, confidence)}
		}
	}()

	verdict := r.classifier.Classify(ctx, batch)
	label, confidence = verdict.Label, verdict.Confidence
	if !label.Valid() {
		r.logger.Warn("classifier returned unknown label", zap.String("label", string(label)))
		label, confidence = activity.LabelNormal, 0
	}
	r.logger.Info("batch classified",
		zap.String("batch", batch.ID),
		zap.Int("frames", batch.Len()),
		zap.String("label", string(label)),
		zap.Float64("confidence", confidence))

	if label == activity.LabelNormal {
		return Outcome{AgentResponse: activity.NoAssist(label, confidence)}
	}

	a, ok := r.registry.Lookup(label)
	if !ok {
		r.logger.Debug("no agent for label", zap.String("label", string(label)))
		return Outcome{AgentResponse: activity.NoAssist(label, confidence)}
	}

	resp, err := a.Analyze(ctx, batch, actx)
	if err != nil {
		r.logger.Warn("agent analysis failed",
			zap.String("agent", string(a.Kind())),
			zap.String("batch", batch.ID),
			zap.Error(err))
		return Outcome{AgentResponse: activity.NoAssist(label, confidence), Agent: a.Kind()}
	}
	resp.Classification = label
	resp.Confidence = confidence
	if resp.ShouldAssist && resp.Suggestion == nil {
		resp.ShouldAssist = false
	}
	return Outcome{AgentResponse: resp, Agent: a.Kind()}
}
