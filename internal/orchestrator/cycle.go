package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/clippy/internal/activity"
	"github.com/nidhogg/clippy/internal/capture"
	"github.com/nidhogg/clippy/internal/gate"
	"github.com/nidhogg/clippy/internal/gateway"
)

// RunCycle processes one batch: route it, gate any suggestion, update the
// sinks and log the event. It runs under the configured request timeout.
func (m *Monitor) RunCycle(ctx context.Context, batch capture.Batch) CycleReport {
	start := time.Now()
	m.inFlight.Store(true)
	defer m.inFlight.Store(false)
	done := m.metrics.CycleStarted()
	defer done()

	cctx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()

	at := m.now()
	if latest := batch.Latest(); latest != nil && !latest.CapturedAt.IsZero() {
		at = latest.CapturedAt
	}

	m.saveSnapshot(batch)
	m.setState(cctx, gateway.StateThinking)

	actx, err := m.store.GetContext(cctx)
	if err != nil {
		m.logger.Warn("read context failed", zap.String("batch", batch.ID), zap.Error(err))
		actx = activity.Context{}
	}
	actx.RecentFrames = batch

	out := m.router.Route(cctx, batch, actx)
	m.metrics.Classified(string(out.Classification))

	report := CycleReport{
		BatchID:        batch.ID,
		Seq:            batch.Seq,
		Classification: out.Classification,
		Confidence:     out.Confidence,
		Agent:          out.Agent,
		Reasoning:      out.Reasoning,
		At:             at,
	}

	if out.ShouldAssist && out.Suggestion != nil {
		d := m.gate.Admit(*out.Suggestion, at)
		report.Decision = d.String()
		m.metrics.Gated(d.String())
		if d == gate.Admit {
			m.present(cctx, *out.Suggestion)
			report.Suggestion = out.Suggestion
		} else {
			m.logger.Info("suggestion suppressed",
				zap.String("batch", batch.ID),
				zap.String("decision", d.String()))
			m.setState(cctx, gateway.StateSleeping)
		}
	} else {
		m.gate.ClearActive()
		if out.Agent != "" {
			m.metrics.NoAssist(string(out.Agent))
		}
		m.logger.Info("no assistance needed",
			zap.String("batch", batch.ID),
			zap.String("label", string(out.Classification)))
		m.setState(cctx, gateway.StateSleeping)
	}

	m.logEvent(ctx, batch, report)
	m.remember(ctx, batch, out.Classification, out.Confidence)

	report.Duration = time.Since(start)
	m.cycles.Add(1)
	m.mu.Lock()
	m.last = &report
	m.mu.Unlock()
	return report
}

func (m *Monitor) present(ctx context.Context, s activity.Suggestion) {
	m.logger.Info("presenting suggestion",
		zap.String("kind", string(s.Kind)),
		zap.String("title", s.Title))
	if err := m.sink.Present(ctx, s); err != nil {
		m.logger.Warn("present suggestion failed", zap.Error(err))
	}
	m.setState(ctx, gateway.StateSuggesting)
}

func (m *Monitor) setState(ctx context.Context, st gateway.State) {
	if err := m.sink.SetState(ctx, st); err != nil {
		m.logger.Warn("set state failed", zap.String("state", string(st)), zap.Error(err))
	}
}

// logEvent appends the cycle to the event log. It uses its own deadline so a
// cycle that timed out is still recorded.
func (m *Monitor) logEvent(ctx context.Context, batch capture.Batch, r CycleReport) {
	ectx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	meta := map[string]any{
		"batch_id":  batch.ID,
		"batch_seq": batch.Seq,
		"frames":    batch.Len(),
	}
	if r.Agent != "" {
		meta["agent"] = string(r.Agent)
	}
	if r.Decision != "" {
		meta["decision"] = r.Decision
	}
	if r.Suggestion != nil {
		meta["suggestion_title"] = r.Suggestion.Title
	}
	err := m.store.AddEvent(ectx, activity.Event{
		Classification: r.Classification,
		Timestamp:      r.At,
		Confidence:     r.Confidence,
		Metadata:       meta,
	})
	if err != nil {
		m.logger.Warn("log event failed", zap.String("batch", batch.ID), zap.Error(err))
	}
}

func (m *Monitor) remember(ctx context.Context, batch capture.Batch, label activity.Label, confidence float64) {
	if m.recall == nil || label == activity.LabelNormal {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()
	if _, err := m.recall.Remember(rctx, batch, label, confidence); err != nil {
		m.logger.Warn("recall index failed", zap.String("batch", batch.ID), zap.Error(err))
	}
}

// saveSnapshot writes the batch's latest frame to SnapshotDir.
func (m *Monitor) saveSnapshot(batch capture.Batch) {
	if m.cfg.SnapshotDir == "" {
		return
	}
	latest := batch.Latest()
	if latest == nil {
		return
	}
	path, err := writeSnapshot(m.cfg.SnapshotDir, batch.Seq, latest.Data)
	if err != nil {
		m.logger.Warn("save snapshot failed", zap.Error(err))
		return
	}
	m.logger.Debug("saved latest batch frame", zap.String("path", path))
}

func writeSnapshot(dir string, seq uint64, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("batch-%d-latest.png", seq))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}
