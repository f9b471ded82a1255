package activity

import (
	"strings"
	"time"

	"github.com/nidhogg/clippy/internal/capture"
)

// Label is the coarse activity class assigned to a frame batch.
type Label string

const (
	LabelError    Label = "error"
	LabelIdle     Label = "idle"
	LabelNormal   Label = "normal"
	LabelWriting  Label = "writing"
	LabelResearch Label = "research"
	LabelCode     Label = "code"
)

// Labels lists every recognized label. The set is append-only: stored events
// written under an older set stay readable.
var Labels = []Label{LabelError, LabelIdle, LabelNormal, LabelWriting, LabelResearch, LabelCode}

// ParseLabel normalizes s and reports whether it is a recognized label.
func ParseLabel(s string) (Label, bool) {
	l := Label(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Labels {
		if l == known {
			return l, true
		}
	}
	return LabelNormal, false
}

// Valid reports whether l belongs to the label set.
func (l Label) Valid() bool {
	for _, known := range Labels {
		if l == known {
			return true
		}
	}
	return false
}

// AgentKind identifies which specialized agent produced a suggestion.
type AgentKind string

const (
	KindDebug    AgentKind = "debug"
	KindLearning AgentKind = "learning"
	KindWriting  AgentKind = "writing"
	KindResearch AgentKind = "research"
)

// Suggestion is a value type; two suggestions with the same kind, title and
// body are duplicates regardless of ProducedAt.
type Suggestion struct {
	Kind       AgentKind `json:"type"`
	Title      string    `json:"title"`
	Body       string    `json:"content"`
	Confidence float64   `json:"confidence"`
	ProducedAt time.Time `json:"timestamp"`
}

// Signature is the dedup key used by the suggestion gate.
func (s Suggestion) Signature() string {
	return string(s.Kind) + "::" + strings.TrimSpace(s.Title) + "::" + strings.TrimSpace(s.Body)
}

// AgentResponse is the outcome of one routed batch.
type AgentResponse struct {
	ShouldAssist   bool        `json:"should_assist"`
	Suggestion     *Suggestion `json:"suggestion,omitempty"`
	Reasoning      string      `json:"reasoning,omitempty"`
	Classification Label       `json:"classification"`
	Confidence     float64     `json:"confidence"`
}

// NoAssist returns the silent response for a resolved label.
func NoAssist(label Label, confidence float64) AgentResponse {
	return AgentResponse{Classification: label, Confidence: confidence}
}

// Event is an append-only log record of one classified batch.
type Event struct {
	ID             string         `json:"id"`
	Classification Label          `json:"type"`
	Timestamp      time.Time      `json:"timestamp"`
	Confidence     float64        `json:"confidence"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// MaxRecentEvents bounds Context.RecentEvents.
const MaxRecentEvents = 10

// Context is the rolling state shared read-only with agents during a cycle.
type Context struct {
	IdleTime       time.Duration
	LastActivityAt time.Time
	CurrentApp     string
	RecentEvents   []Event // most recent first
	RecentFrames   capture.Batch
}
