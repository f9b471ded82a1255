package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/clippy/internal/activity"
)

// State is the assistant's visible mood.
type State string

const (
	StateSleeping   State = "sleeping"
	StateThinking   State = "thinking"
	StateSuggesting State = "suggesting"
)

// Sink delivers suggestions and state changes to one destination.
type Sink interface {
	Name() string
	Present(ctx context.Context, s activity.Suggestion) error
	SetState(ctx context.Context, st State) error
	Close() error
}

// Connector is implemented by sinks that hold a long-lived connection.
type Connector interface {
	Connect(ctx context.Context) error
}

// SinkStatus reports the health of a sink.
type SinkStatus struct {
	Name        string     `json:"name"`
	Connected   bool       `json:"connected"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Details     string     `json:"details,omitempty"`
}

// StatusReporter is implemented by sinks that expose connection details.
type StatusReporter interface {
	Status() SinkStatus
}

// ControlKind names an inbound control signal.
type ControlKind string

const (
	ControlDismiss  ControlKind = "dismiss"
	ControlActivity ControlKind = "activity"
	ControlApp      ControlKind = "app"
)

// Control is a user-side signal received from an external channel.
type Control struct {
	Kind ControlKind `json:"kind"`
	At   time.Time   `json:"at"`
	App  string      `json:"app,omitempty"`
}

// FormatText renders a suggestion for chat platforms using bold markers.
func FormatText(s activity.Suggestion, bold string) string {
	return fmt.Sprintf("%s%s%s\n%s", bold, strings.TrimSpace(s.Title), bold, strings.TrimSpace(s.Body))
}
