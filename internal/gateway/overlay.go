package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/nidhogg/clippy/internal/activity"
)

// OverlayView is what the overlay renders.
type OverlayView struct {
	Version    uint64               `json:"version"`
	State      State                `json:"state"`
	Suggestion *activity.Suggestion `json:"suggestion,omitempty"`
	HTML       string               `json:"html,omitempty"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// OverlayFeed is the Sink read by the desktop overlay over HTTP. Clients
// either poll the current view or long-poll for the next version.
type OverlayFeed struct {
	mu      sync.RWMutex
	view    OverlayView
	changed chan struct{}
	md      goldmark.Markdown
	wait    time.Duration
	logger  *zap.Logger
}

// NewOverlayFeed creates an overlay feed in the sleeping state.
func NewOverlayFeed(logger *zap.Logger) *OverlayFeed {
	return &OverlayFeed{
		view:    OverlayView{State: StateSleeping, UpdatedAt: time.Now()},
		changed: make(chan struct{}),
		md:      goldmark.New(),
		wait:    30 * time.Second,
		logger:  logger,
	}
}

func (f *OverlayFeed) Name() string { return "overlay" }

func (f *OverlayFeed) Close() error { return nil }

// Present shows s and switches to the suggesting state.
func (f *OverlayFeed) Present(_ context.Context, s activity.Suggestion) error {
	var buf bytes.Buffer
	if err := f.md.Convert([]byte(s.Body), &buf); err != nil {
		f.logger.Warn("markdown render failed", zap.Error(err))
		buf.Reset()
	}
	f.update(func(v *OverlayView) {
		v.State = StateSuggesting
		v.Suggestion = &s
		v.HTML = buf.String()
	})
	return nil
}

// SetState changes the state; leaving the suggesting state clears the card.
func (f *OverlayFeed) SetState(_ context.Context, st State) error {
	f.update(func(v *OverlayView) {
		v.State = st
		if st != StateSuggesting {
			v.Suggestion = nil
			v.HTML = ""
		}
	})
	return nil
}

func (f *OverlayFeed) update(fn func(*OverlayView)) {
	f.mu.Lock()
	fn(&f.view)
	f.view.Version++
	f.view.UpdatedAt = time.Now()
	close(f.changed)
	f.changed = make(chan struct{})
	f.mu.Unlock()
}

// View returns the current view and a channel closed on the next change.
func (f *OverlayFeed) View() (OverlayView, <-chan struct{}) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.view, f.changed
}

// Routes returns a chi router with the overlay endpoints.
func (f *OverlayFeed) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", f.handleCurrent)
	r.Get("/wait", f.handleWait)
	return r
}

func (f *OverlayFeed) handleCurrent(w http.ResponseWriter, _ *http.Request) {
	v, _ := f.View()
	writeView(w, v)
}

// handleWait blocks until the view version exceeds ?since= or the wait
// window passes, then returns the current view.
func (f *OverlayFeed) handleWait(w http.ResponseWriter, r *http.Request) {
	since, err := strconv.ParseUint(r.URL.Query().Get("since"), 10, 64)
	if err != nil && r.URL.Query().Get("since") != "" {
		http.Error(w, `{"error":"invalid since"}`, http.StatusBadRequest)
		return
	}
	timeout := time.NewTimer(f.wait)
	defer timeout.Stop()
	for {
		v, changed := f.View()
		if v.Version > since {
			writeView(w, v)
			return
		}
		select {
		case <-changed:
		case <-timeout.C:
			writeView(w, v)
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeView(w http.ResponseWriter, v OverlayView) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
