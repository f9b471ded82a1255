// Package agent holds the specialized analysts that decide whether a
// classified batch deserves a suggestion.
package agent

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/clippy/internal/activity"
	"github.com/nidhogg/clippy/internal/capture"
)

// Agent analyzes a batch for one activity label.
type Agent interface {
	Kind() activity.AgentKind
	Analyze(ctx context.Context, batch capture.Batch, actx activity.Context) (activity.AgentResponse, error)
}

// Registry maps activity labels to agents. It is fixed after construction;
// a label without an entry is a deliberate no-op.
type Registry struct {
	agents map[activity.Label]Agent
}

// NewRegistry copies bindings into a new Registry. Invalid and normal labels
// are ignored.
func NewRegistry(bindings map[activity.Label]Agent) *Registry {
	r := &Registry{agents: make(map[activity.Label]Agent, len(bindings))}
	for label, a := range bindings {
		if !label.Valid() || label == activity.LabelNormal || a == nil {
			continue
		}
		r.agents[label] = a
	}
	return r
}

// Lookup returns the agent bound to label.
func (r *Registry) Lookup(label activity.Label) (Agent, bool) {
	a, ok := r.agents[label]
	return a, ok
}

// Labels returns the handled labels in sorted order.
func (r *Registry) Labels() []activity.Label {
	out := make([]activity.Label, 0, len(r.agents))
	for l := range r.agents {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Options configures the default agent set.
type Options struct {
	IdleThreshold time.Duration
	Enricher      Enricher
}

// DefaultRegistry wires the standard agents: error to Debug, idle to
// Learning, writing to Writing and research to Research. code stays unhandled.
func DefaultRegistry(an *Analyzer, opts Options, logger *zap.Logger) *Registry {
	return NewRegistry(map[activity.Label]Agent{
		activity.LabelError:    NewDebug(an, logger),
		activity.LabelIdle:     NewLearning(an, opts.IdleThreshold, logger),
		activity.LabelWriting:  NewWriting(an, logger),
		activity.LabelResearch: NewResearch(an, opts.Enricher, logger),
	})
}
