// Package gate suppresses repeated and dismissed suggestions.
package gate

import (
	"sync"
	"time"

	"github.com/nidhogg/clippy/internal/activity"
)

// Defaults for Config.
const (
	DefaultCooldown           = 60 * time.Second
	DefaultDismissSuppression = 300 * time.Second
)

// Decision is the outcome of Admit.
type Decision int

const (
	Admit Decision = iota
	SuppressRepeat
	SuppressDismissed
)

func (d Decision) String() string {
	switch d {
	case Admit:
		return "admit"
	case SuppressRepeat:
		return "suppress_repeat"
	case SuppressDismissed:
		return "suppress_dismissed"
	}
	return "unknown"
}

// Config holds the gate windows.
type Config struct {
	Cooldown           time.Duration
	DismissSuppression time.Duration
}

// Gate decides whether a suggestion may be shown. Cooldown and dismissal are
// independent filters: a signature is only suppressed after an explicit
// Dismiss, never because its cooldown lapsed. All methods are safe for
// concurrent use; each call is one atomic transaction.
type Gate struct {
	mu         sync.Mutex
	cfg        Config
	lastSig    string
	lastSentAt time.Time
	activeSig  string
	suppressed map[string]time.Time
}

// New creates a Gate. Zero windows take the defaults.
func New(cfg Config) *Gate {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.DismissSuppression <= 0 {
		cfg.DismissSuppression = DefaultDismissSuppression
	}
	return &Gate{cfg: cfg, suppressed: make(map[string]time.Time)}
}

// Admit decides on s at time now and records it when admitted.
func (g *Gate) Admit(s activity.Suggestion, now time.Time) Decision {
	sig := s.Signature()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.gc(now)
	if at, ok := g.suppressed[sig]; ok && now.Sub(at) < g.cfg.DismissSuppression {
		return SuppressDismissed
	}
	if sig == g.lastSig && now.Sub(g.lastSentAt) < g.cfg.Cooldown {
		return SuppressRepeat
	}
	g.lastSig = sig
	g.lastSentAt = now
	g.activeSig = sig
	return Admit
}

// Dismiss suppresses the active suggestion, if any. It reports whether a
// suggestion was active.
func (g *Gate) Dismiss(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.activeSig == "" {
		return false
	}
	g.suppressed[g.activeSig] = now
	g.activeSig = ""
	return true
}

// ClearActive forgets the active suggestion without suppressing it.
func (g *Gate) ClearActive() {
	g.mu.Lock()
	g.activeSig = ""
	g.mu.Unlock()
}

// Active returns the signature currently on screen.
func (g *Gate) Active() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activeSig, g.activeSig != ""
}

// Suppressed returns the number of live suppression entries at now.
func (g *Gate) Suppressed(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gc(now)
	return len(g.suppressed)
}

func (g *Gate) gc(now time.Time) {
	for sig, at := range g.suppressed {
		if now.Sub(at) >= g.cfg.DismissSuppression {
			delete(g.suppressed, sig)
		}
	}
}
