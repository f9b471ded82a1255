// Package orchestrator owns the capture tick loop and runs each full frame
// batch through classify, route and gate, then fans the outcome out to the
// sinks and the event log.
package orchestrator

import (
	"context"
	"time"

	"github.com/nidhogg/clippy/internal/activity"
	"github.com/nidhogg/clippy/internal/capture"
	"github.com/nidhogg/clippy/internal/router"
)

// Defaults for Config.
const (
	DefaultFrameInterval  = time.Second
	DefaultRequestTimeout = 45 * time.Second
)

// Config tunes the monitor loop.
type Config struct {
	FrameInterval  time.Duration
	RequestTimeout time.Duration
	// SnapshotDir receives batch-<n>-latest.png when set.
	SnapshotDir string
}

// Router resolves a batch to an outcome; *router.Router implements it.
type Router interface {
	Route(ctx context.Context, batch capture.Batch, actx activity.Context) router.Outcome
}

// Rememberer indexes a batch for later recall; *recall.Recaller implements it.
type Rememberer interface {
	Remember(ctx context.Context, batch capture.Batch, label activity.Label, confidence float64) (string, error)
}

// CycleReport summarizes one processed batch.
type CycleReport struct {
	BatchID        string               `json:"batch_id"`
	Seq            uint64               `json:"seq"`
	Classification activity.Label       `json:"classification"`
	Confidence     float64              `json:"confidence"`
	Agent          activity.AgentKind   `json:"agent,omitempty"`
	Decision       string               `json:"decision,omitempty"`
	Suggestion     *activity.Suggestion `json:"suggestion,omitempty"`
	Reasoning      string               `json:"reasoning,omitempty"`
	At             time.Time            `json:"at"`
	Duration       time.Duration        `json:"duration"`
}

// Status is a point-in-time view of the monitor.
type Status struct {
	Running       bool          `json:"running"`
	FrameInterval time.Duration `json:"frame_interval"`
	BatchSize     int           `json:"batch_size"`
	Pending       int           `json:"pending_frames"`
	Captured      uint64        `json:"frames_captured"`
	Dispatched    uint64        `json:"batches_dispatched"`
	Dropped       uint64        `json:"batches_dropped"`
	Cycles        uint64        `json:"cycles"`
	InFlight      bool          `json:"in_flight"`
	ActiveSuggest bool          `json:"active_suggestion"`
	Last          *CycleReport  `json:"last_cycle,omitempty"`
}
