package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/clippy/internal/gateway"
	"github.com/nidhogg/clippy/internal/metrics"
	"github.com/nidhogg/clippy/internal/orchestrator"
	"github.com/nidhogg/clippy/internal/provider"
	"github.com/nidhogg/clippy/internal/recall"
	"github.com/nidhogg/clippy/internal/store"
)

// Controller is the monitor surface the API drives; *orchestrator.Monitor
// implements it.
type Controller interface {
	Dismiss(ctx context.Context) bool
	MarkActivity(ctx context.Context) error
	SetCurrentApp(ctx context.Context, app string) error
	Status() orchestrator.Status
}

// Recaller searches remembered screens; *recall.Recaller implements it.
type Recaller interface {
	Search(ctx context.Context, query string, limit int, label string) ([]recall.Hit, error)
}

// Deps holds the handler collaborators. Monitor, Recall, Providers and
// Metrics may be nil; Monitor is nil when monitoring is disabled.
type Deps struct {
	Monitor   Controller
	Overlay   *gateway.OverlayFeed
	Gateway   *gateway.Gateway
	Store     store.ContextStore
	Recall    Recaller
	Providers *provider.Router
	Metrics   *metrics.Metrics
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	monitor   Controller
	overlay   *gateway.OverlayFeed
	gw        *gateway.Gateway
	store     store.ContextStore
	recall    Recaller
	providers *provider.Router
	metrics   *metrics.Metrics
	started   time.Time
	logger    *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	return &Handler{
		monitor:   deps.Monitor,
		overlay:   deps.Overlay,
		gw:        deps.Gateway,
		store:     deps.Store,
		recall:    deps.Recall,
		providers: deps.Providers,
		metrics:   deps.Metrics,
		started:   time.Now(),
		logger:    logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Handle("/metrics", h.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/status", h.status)

		// Overlay feed plus dismiss
		sr := h.overlay.Routes()
		sr.Post("/dismiss", h.dismiss)
		r.Mount("/suggestion", sr)

		// User signals
		r.Post("/activity", h.activity)
		r.Post("/app", h.setApp)

		// Logs
		r.Get("/events", h.events)
		r.Get("/history", h.history)
		r.Get("/recall", h.search)
		r.Get("/providers", h.listProviders)
	})

	return r
}

func (h *Handler) monitoring() string {
	if h.monitor == nil {
		return "disabled"
	}
	return "enabled"
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "monitoring": h.monitoring()})
}

type statusResponse struct {
	Monitoring string               `json:"monitoring"`
	Uptime     string               `json:"uptime"`
	Monitor    *orchestrator.Status `json:"monitor,omitempty"`
	Sinks      []gateway.SinkStatus `json:"sinks"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Monitoring: h.monitoring(),
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Sinks:      h.gw.Statuses(),
	}
	if h.monitor != nil {
		st := h.monitor.Status()
		resp.Monitor = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) dismiss(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		// Still clear the overlay so the card goes away.
		h.gw.SetState(r.Context(), gateway.StateSleeping)
		writeJSON(w, http.StatusOK, map[string]bool{"dismissed": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"dismissed": h.monitor.Dismiss(r.Context())})
}

func (h *Handler) activity(w http.ResponseWriter, r *http.Request) {
	var err error
	if h.monitor != nil {
		err = h.monitor.MarkActivity(r.Context())
	} else {
		err = h.store.MarkActivity(r.Context(), time.Now())
	}
	if err != nil {
		h.logger.Warn("mark activity failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type appRequest struct {
	App string `json:"app"`
}

func (h *Handler) setApp(w http.ResponseWriter, r *http.Request) {
	var req appRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	app := strings.TrimSpace(req.App)
	var err error
	if h.monitor != nil {
		err = h.monitor.SetCurrentApp(r.Context(), app)
	} else {
		err = h.store.SetCurrentApp(r.Context(), app)
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"app": app})
}

func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	events, err := h.store.RecentEvents(r.Context(), queryLimit(r, 10))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.History(queryLimit(r, 0)))
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	if h.recall == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "recall not configured"})
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
		return
	}
	hits, err := h.recall.Search(r.Context(), q, queryLimit(r, 0), r.URL.Query().Get("label"))
	if err != nil {
		h.logger.Warn("recall search failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	if hits == nil {
		hits = []recall.Hit{}
	}
	writeJSON(w, http.StatusOK, hits)
}

type providerInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Default bool   `json:"default"`
	Healthy *bool  `json:"healthy,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	out := []providerInfo{}
	if h.providers == nil {
		writeJSON(w, http.StatusOK, out)
		return
	}
	check := r.URL.Query().Get("check") == "true"
	def := h.providers.DefaultID()
	for _, p := range h.providers.ListProviders() {
		info := providerInfo{ID: p.ID(), Name: p.Name(), Default: p.ID() == def}
		if check {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			err := p.HealthCheck(ctx)
			cancel()
			ok := err == nil
			info.Healthy = &ok
			if err != nil {
				info.Error = err.Error()
			}
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
