package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nidhogg/clippy/internal/gateway"
)

// Dismiss suppresses the suggestion on screen and puts the assistant to
// sleep. It reports whether a suggestion was active.
func (m *Monitor) Dismiss(ctx context.Context) bool {
	dismissed := m.gate.Dismiss(m.now())
	m.setState(ctx, gateway.StateSleeping)
	m.logger.Info("suggestion dismissed", zap.Bool("was_active", dismissed))
	return dismissed
}

// MarkActivity records user input now, resetting idle time.
func (m *Monitor) MarkActivity(ctx context.Context) error {
	if err := m.store.MarkActivity(ctx, m.now()); err != nil {
		return fmt.Errorf("mark activity: %w", err)
	}
	return nil
}

// SetCurrentApp records the foreground application.
func (m *Monitor) SetCurrentApp(ctx context.Context, app string) error {
	if err := m.store.SetCurrentApp(ctx, app); err != nil {
		return fmt.Errorf("set current app: %w", err)
	}
	return nil
}

// Consume applies control signals until ch closes or ctx is cancelled.
func (m *Monitor) Consume(ctx context.Context, ch <-chan gateway.Control) {
	for {
		select {
		case <-ctx.Done():
			return
		case ctl, ok := <-ch:
			if !ok {
				return
			}
			m.apply(ctx, ctl)
		}
	}
}

func (m *Monitor) apply(ctx context.Context, ctl gateway.Control) {
	var err error
	switch ctl.Kind {
	case gateway.ControlDismiss:
		m.Dismiss(ctx)
	case gateway.ControlActivity:
		err = m.MarkActivity(ctx)
	case gateway.ControlApp:
		err = m.SetCurrentApp(ctx, ctl.App)
	default:
		m.logger.Warn("unknown control signal", zap.String("kind", string(ctl.Kind)))
		return
	}
	if err != nil {
		m.logger.Warn("control signal failed", zap.String("kind", string(ctl.Kind)), zap.Error(err))
	}
}
