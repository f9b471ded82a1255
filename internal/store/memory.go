package store

import (
	"context"
	"sync"
	"time"

	"github.com/nidhogg/clippy/internal/activity"
)

// DefaultMemoryEvents bounds the in-memory event log.
const DefaultMemoryEvents = 1000

// Memory is a process-local ContextStore.
type Memory struct {
	mu             sync.Mutex
	idle           time.Duration
	lastActivityAt time.Time
	currentApp     string
	events         []activity.Event // oldest first
	maxEvents      int
	closed         bool
}

// NewMemory creates an in-memory store whose activity clock starts now.
func NewMemory() *Memory {
	return &Memory{lastActivityAt: time.Now(), maxEvents: DefaultMemoryEvents}
}

func (m *Memory) GetContext(_ context.Context) (activity.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return activity.Context{}, ErrClosed
	}
	return activity.Context{
		IdleTime:       m.idle,
		LastActivityAt: m.lastActivityAt,
		CurrentApp:     m.currentApp,
		RecentEvents:   m.recentLocked(activity.MaxRecentEvents),
	}, nil
}

func (m *Memory) UpdateIdleTime(_ context.Context, idle time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if idle < 0 {
		idle = 0
	}
	m.idle = idle
	return nil
}

func (m *Memory) AddEvent(_ context.Context, e activity.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.events = append(m.events, prepareEvent(e, time.Now()))
	if over := len(m.events) - m.maxEvents; over > 0 {
		m.events = append(m.events[:0:0], m.events[over:]...)
	}
	return nil
}

func (m *Memory) MarkActivity(_ context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.lastActivityAt = at
	m.idle = 0
	return nil
}

func (m *Memory) SetCurrentApp(_ context.Context, app string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.currentApp = app
	return nil
}

func (m *Memory) RecentEvents(_ context.Context, limit int) ([]activity.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.recentLocked(clampLimit(limit)), nil
}

func (m *Memory) recentLocked(limit int) []activity.Event {
	n := len(m.events)
	if limit > n {
		limit = n
	}
	out := make([]activity.Event, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.events[i])
	}
	return out
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
