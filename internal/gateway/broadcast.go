package gateway

import (
	"sync"
	"time"

	"github.com/nidhogg/clippy/internal/activity"
)

// DefaultHistorySize bounds the presented-suggestion history.
const DefaultHistorySize = 50

// Record tracks a presented suggestion.
type Record struct {
	Suggestion activity.Suggestion `json:"suggestion"`
	SentAt     time.Time           `json:"sent_at"`
	Targets    []string            `json:"targets"`
}

// History is a bounded log of presented suggestions.
type History struct {
	mu      sync.Mutex
	records []Record
	max     int
}

// NewHistory creates a History holding at most max records.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistorySize
	}
	return &History{max: max}
}

// Add appends r, dropping the oldest record when full.
func (h *History) Add(r Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	if over := len(h.records) - h.max; over > 0 {
		h.records = append(h.records[:0:0], h.records[over:]...)
	}
}

// Recent returns up to limit records, oldest first.
func (h *History) Recent(limit int) []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > len(h.records) {
		limit = len(h.records)
	}
	start := len(h.records) - limit
	out := make([]Record, limit)
	copy(out, h.records[start:])
	return out
}
