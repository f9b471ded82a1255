// Package store keeps the rolling activity context and the append-only event
// log. Implementations: in-memory, SQLite and PostgreSQL.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nidhogg/clippy/internal/activity"
)

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("store: closed")

// ContextStore owns idle tracking and the event log.
type ContextStore interface {
	// GetContext returns idle state, current app and the most recent events.
	// RecentFrames is left for the caller to fill.
	GetContext(ctx context.Context) (activity.Context, error)
	UpdateIdleTime(ctx context.Context, idle time.Duration) error
	AddEvent(ctx context.Context, e activity.Event) error
	// MarkActivity records user input at time at and resets idle time.
	MarkActivity(ctx context.Context, at time.Time) error
	SetCurrentApp(ctx context.Context, app string) error
	// RecentEvents returns up to limit events, most recent first.
	RecentEvents(ctx context.Context, limit int) ([]activity.Event, error)
	Close() error
}

// prepareEvent fills in a missing ID and timestamp.
func prepareEvent(e activity.Event, now time.Time) activity.Event {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.Classification == "" {
		e.Classification = activity.LabelNormal
	}
	return e
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return activity.MaxRecentEvents
	}
	return limit
}
