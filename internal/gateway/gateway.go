package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/clippy/internal/activity"
)

// Gateway fans suggestions and state changes out to every registered sink.
// It is itself a Sink.
type Gateway struct {
	sinks   map[string]Sink
	history *History
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewGateway creates a gateway.
func NewGateway(logger *zap.Logger) *Gateway {
	return &Gateway{
		sinks:   make(map[string]Sink),
		history: NewHistory(DefaultHistorySize),
		logger:  logger,
	}
}

func (g *Gateway) Name() string { return "gateway" }

// Register adds a sink.
func (g *Gateway) Register(s Sink) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sinks[s.Name()] = s
	g.logger.Info("registered sink", zap.String("sink", s.Name()))
}

// ConnectAll connects every sink that implements Connector. A failing sink
// does not stop the others; all failures are joined.
func (g *Gateway) ConnectAll(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error
	for name, s := range g.sinks {
		c, ok := s.(Connector)
		if !ok {
			continue
		}
		if err := c.Connect(ctx); err != nil {
			g.logger.Error("sink connect failed", zap.String("sink", name), zap.Error(err))
			errs = append(errs, fmt.Errorf("connect %s: %w", name, err))
			continue
		}
		g.logger.Info("sink connected", zap.String("sink", name))
	}
	return errors.Join(errs...)
}

// Present delivers s to all sinks. A failing sink does not stop the others.
func (g *Gateway) Present(ctx context.Context, s activity.Suggestion) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var (
		errs    []error
		targets []string
	)
	for name, sink := range g.sinks {
		if err := sink.Present(ctx, s); err != nil {
			g.logger.Warn("present failed", zap.String("sink", name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		targets = append(targets, name)
	}
	sort.Strings(targets)
	g.history.Add(Record{Suggestion: s, SentAt: time.Now(), Targets: targets})
	return errors.Join(errs...)
}

// SetState forwards st to all sinks.
func (g *Gateway) SetState(ctx context.Context, st State) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error
	for name, sink := range g.sinks {
		if err := sink.SetState(ctx, st); err != nil {
			g.logger.Warn("set state failed", zap.String("sink", name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Close shuts down all sinks.
func (g *Gateway) Close() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for name, s := range g.sinks {
		if err := s.Close(); err != nil {
			g.logger.Error("sink close failed", zap.String("sink", name), zap.Error(err))
		}
	}
	return nil
}

// Sinks returns the registered sink names.
func (g *Gateway) Sinks() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.sinks))
	for n := range g.sinks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Statuses reports every sink, connected unless it says otherwise.
func (g *Gateway) Statuses() []SinkStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]SinkStatus, 0, len(g.sinks))
	for name, s := range g.sinks {
		if r, ok := s.(StatusReporter); ok {
			out = append(out, r.Status())
			continue
		}
		out = append(out, SinkStatus{Name: name, Connected: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// History returns the most recent presented suggestions, newest last.
func (g *Gateway) History(limit int) []Record {
	return g.history.Recent(limit)
}
