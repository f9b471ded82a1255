package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/clippy/internal/activity"
	"github.com/nidhogg/clippy/internal/agent"
	"github.com/nidhogg/clippy/internal/capture"
	"github.com/nidhogg/clippy/internal/classify"
	"github.com/nidhogg/clippy/internal/gate"
	"github.com/nidhogg/clippy/internal/gateway"
	"github.com/nidhogg/clippy/internal/provider"
	"github.com/nidhogg/clippy/internal/router"
	"github.com/nidhogg/clippy/internal/store"
)

// purposeChat answers by purpose and counts calls.
type purposeChat struct {
	mu      sync.Mutex
	replies map[string]string
	calls   map[string]int
}

func newPurposeChat(classification, analysis string) *purposeChat {
	return &purposeChat{
		replies: map[string]string{
			provider.PurposeClassify: classification,
			provider.PurposeAnalyze:  analysis,
		},
		calls: map[string]int{},
	}
}

func (c *purposeChat) Route(_ context.Context, purpose string, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req.Purpose = purpose
	c.calls[purpose]++
	reply, ok := c.replies[purpose]
	if !ok {
		return nil, errors.New("no reply scripted")
	}
	return &provider.ChatResponse{Content: reply}, nil
}

func (c *purposeChat) count(purpose string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[purpose]
}

type fakeSource struct {
	mu   sync.Mutex
	at   time.Time
	fail bool
}

func (s *fakeSource) Capture(context.Context) (*capture.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("permission denied")
	}
	s.at = s.at.Add(time.Second)
	return &capture.Frame{Data: []byte("\x89PNG\r\n\x1a\nframe"), CapturedAt: s.at}, nil
}

type fakeRecall struct {
	mu     sync.Mutex
	labels []activity.Label
}

func (r *fakeRecall) Remember(_ context.Context, _ capture.Batch, label activity.Label, _ float64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels = append(r.labels, label)
	return "id", nil
}

const (
	errorVerdict  = `{"classification":"error","confidence":0.92}`
	normalVerdict = "```json\n{\"classification\":\"normal\",\"confidence\":0.8}\n```"
	assistReply   = `{"shouldAssist":true,"suggestion":"Run go mod tidy to add the missing module.","reasoning":"import error"}`
)

var t0 = time.Date(2026, 2, 2, 14, 0, 0, 0, time.UTC)

type harness struct {
	m       *Monitor
	chat    *purposeChat
	source  *fakeSource
	store   *store.Memory
	overlay *gateway.OverlayFeed
	recall  *fakeRecall
}

func newHarness(t *testing.T, chat *purposeChat, batchSize int, cfg Config) *harness {
	t.Helper()
	logger := zap.NewNop()
	registry := agent.DefaultRegistry(agent.NewAnalyzer(chat, logger), agent.Options{IdleThreshold: time.Minute}, logger)
	rt := router.New(classify.New(chat, logger), registry, logger)

	mem := store.NewMemory()
	t.Cleanup(func() { mem.Close() })
	overlay := gateway.NewOverlayFeed(logger)
	gw := gateway.NewGateway(logger)
	gw.Register(overlay)

	src := &fakeSource{at: t0}
	rec := &fakeRecall{}
	m := New(Deps{
		Source:  src,
		Batcher: capture.NewBatcher(batchSize),
		Router:  rt,
		Gate:    gate.New(gate.Config{}),
		Store:   mem,
		Sink:    gw,
		Recall:  rec,
	}, cfg, logger, WithClock(func() time.Time { return t0 }))
	return &harness{m: m, chat: chat, source: src, store: mem, overlay: overlay, recall: rec}
}

// fill ticks until a batch is dispatched and returns it.
func (h *harness) fill(t *testing.T) capture.Batch {
	t.Helper()
	for i := 0; i < 100; i++ {
		if h.m.Tick(context.Background()) {
			return <-h.m.slot
		}
	}
	t.Fatal("no batch dispatched")
	return capture.Batch{}
}

func TestErrorBatchReachesDebugAgent(t *testing.T) {
	h := newHarness(t, newPurposeChat(errorVerdict, assistReply), 3, Config{})

	b := h.fill(t)
	if b.Len() != 3 {
		t.Fatalf("batch len = %d, want 3", b.Len())
	}
	r := h.m.RunCycle(context.Background(), b)

	if r.Classification != activity.LabelError || r.Agent != activity.KindDebug {
		t.Fatalf("report = %+v", r)
	}
	if r.Decision != gate.Admit.String() || r.Suggestion == nil {
		t.Fatalf("decision = %q suggestion = %v", r.Decision, r.Suggestion)
	}
	if h.chat.count(provider.PurposeClassify) != 1 || h.chat.count(provider.PurposeAnalyze) != 1 {
		t.Errorf("calls = %v", h.chat.calls)
	}

	v, _ := h.overlay.View()
	if v.State != gateway.StateSuggesting || v.Suggestion == nil || v.Suggestion.Title != "I noticed an error" {
		t.Errorf("overlay = %+v", v)
	}

	events, err := h.store.RecentEvents(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	e := events[0]
	if e.Classification != activity.LabelError || e.Confidence != 0.92 {
		t.Errorf("event = %+v", e)
	}
	if e.Metadata["decision"] != "admit" || e.Metadata["agent"] != "debug" {
		t.Errorf("metadata = %v", e.Metadata)
	}
	if len(h.recall.labels) != 1 || h.recall.labels[0] != activity.LabelError {
		t.Errorf("recall = %v", h.recall.labels)
	}
	if st := h.m.Status(); st.Cycles != 1 || !st.ActiveSuggest || st.Last == nil {
		t.Errorf("status = %+v", st)
	}
}

func TestNormalBatchSkipsAgents(t *testing.T) {
	h := newHarness(t, newPurposeChat(normalVerdict, assistReply), 2, Config{})

	r := h.m.RunCycle(context.Background(), h.fill(t))

	if r.Classification != activity.LabelNormal || r.Agent != "" || r.Suggestion != nil {
		t.Fatalf("report = %+v", r)
	}
	if n := h.chat.count(provider.PurposeAnalyze); n != 0 {
		t.Errorf("agent called %d times for a normal batch", n)
	}
	if v, _ := h.overlay.View(); v.State != gateway.StateSleeping {
		t.Errorf("state = %s", v.State)
	}
	if len(h.recall.labels) != 0 {
		t.Errorf("normal batches are not remembered: %v", h.recall.labels)
	}
	events, _ := h.store.RecentEvents(context.Background(), 5)
	if len(events) != 1 || events[0].Classification != activity.LabelNormal {
		t.Errorf("events = %+v", events)
	}
}

func TestRepeatAndDismissedSuppressed(t *testing.T) {
	h := newHarness(t, newPurposeChat(errorVerdict, assistReply), 2, Config{})
	ctx := context.Background()

	if r := h.m.RunCycle(ctx, h.fill(t)); r.Decision != "admit" {
		t.Fatalf("first = %q", r.Decision)
	}
	// Two more frames: the next batch's latest frame is 2s later.
	if r := h.m.RunCycle(ctx, h.fill(t)); r.Decision != "suppress_repeat" {
		t.Errorf("second = %q, want suppress_repeat", r.Decision)
	}
	if v, _ := h.overlay.View(); v.State != gateway.StateSleeping {
		t.Errorf("suppressed cycle should sleep, state = %s", v.State)
	}

	// The first admission is still the active one.
	if !h.m.Dismiss(ctx) {
		t.Fatal("dismiss should find the active suggestion")
	}
	h.source.mu.Lock()
	h.source.at = h.source.at.Add(2 * time.Minute)
	h.source.mu.Unlock()
	if r := h.m.RunCycle(ctx, h.fill(t)); r.Decision != "suppress_dismissed" {
		t.Errorf("after dismiss = %q, want suppress_dismissed", r.Decision)
	}
}

func TestBatchDroppedWhileSlotBusy(t *testing.T) {
	h := newHarness(t, newPurposeChat(normalVerdict, ""), 1, Config{})
	ctx := context.Background()

	if !h.m.Tick(ctx) {
		t.Fatal("first batch should be dispatched")
	}
	if h.m.Tick(ctx) {
		t.Fatal("second batch should be dropped while the slot is full")
	}
	st := h.m.Status()
	if st.Dispatched != 1 || st.Dropped != 1 || st.Captured != 2 {
		t.Errorf("status = %+v", st)
	}
}

func TestCaptureFailureSkipsTick(t *testing.T) {
	h := newHarness(t, newPurposeChat(normalVerdict, ""), 2, Config{})
	h.source.fail = true

	for i := 0; i < 5; i++ {
		if h.m.Tick(context.Background()) {
			t.Fatal("failed captures must not dispatch")
		}
	}
	if st := h.m.Status(); st.Pending != 0 || st.Captured != 0 {
		t.Errorf("status = %+v", st)
	}
}

func TestTickUpdatesIdleTime(t *testing.T) {
	h := newHarness(t, newPurposeChat(normalVerdict, ""), 5, Config{})
	ctx := context.Background()
	h.store.MarkActivity(ctx, t0.Add(-3*time.Minute))

	h.m.Tick(ctx)

	actx, err := h.store.GetContext(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if actx.IdleTime != 3*time.Minute {
		t.Errorf("idle = %v, want 3m", actx.IdleTime)
	}
}

func TestConsumeControls(t *testing.T) {
	h := newHarness(t, newPurposeChat(normalVerdict, ""), 2, Config{})
	ctx := context.Background()

	ch := make(chan gateway.Control, 3)
	ch <- gateway.Control{Kind: gateway.ControlApp, App: "Terminal"}
	ch <- gateway.Control{Kind: gateway.ControlActivity}
	ch <- gateway.Control{Kind: "bogus"}
	close(ch)
	h.m.Consume(ctx, ch)

	actx, _ := h.store.GetContext(ctx)
	if actx.CurrentApp != "Terminal" {
		t.Errorf("app = %q", actx.CurrentApp)
	}
	if !actx.LastActivityAt.Equal(t0) || actx.IdleTime != 0 {
		t.Errorf("activity = %v idle = %v", actx.LastActivityAt, actx.IdleTime)
	}
}

func TestSnapshotWritten(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, newPurposeChat(normalVerdict, ""), 2, Config{SnapshotDir: dir})

	b := h.fill(t)
	h.m.RunCycle(context.Background(), b)

	data, err := os.ReadFile(filepath.Join(dir, "batch-1-latest.png"))
	if err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
	if string(data) != string(b.Latest().Data) {
		t.Error("snapshot should hold the latest frame")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, newPurposeChat(normalVerdict, ""), 2, Config{FrameInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.m.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for h.m.Status().Cycles == 0 {
		select {
		case <-deadline:
			cancel()
			t.Fatal("no cycle completed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if h.m.Status().Running {
		t.Error("should report stopped")
	}
}
