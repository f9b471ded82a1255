package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/clippy/internal/capture"
	"github.com/nidhogg/clippy/internal/gate"
	"github.com/nidhogg/clippy/internal/gateway"
	"github.com/nidhogg/clippy/internal/metrics"
	"github.com/nidhogg/clippy/internal/store"
)

// Deps are the collaborators a Monitor drives. Recall and Metrics may be nil.
type Deps struct {
	Source  capture.Source
	Batcher *capture.Batcher
	Router  Router
	Gate    *gate.Gate
	Store   store.ContextStore
	Sink    gateway.Sink
	Recall  Rememberer
	Metrics *metrics.Metrics
}

// Monitor captures a frame every tick and hands full batches to a single
// cycle worker. The tick loop never waits on the model: when a cycle is in
// flight and another batch is already queued, the new batch is dropped.
type Monitor struct {
	cfg     Config
	source  capture.Source
	batcher *capture.Batcher
	router  Router
	gate    *gate.Gate
	store   store.ContextStore
	sink    gateway.Sink
	recall  Rememberer
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *zap.Logger

	slot chan capture.Batch

	running    atomic.Bool
	inFlight   atomic.Bool
	captured   atomic.Uint64
	dispatched atomic.Uint64
	dropped    atomic.Uint64
	cycles     atomic.Uint64

	mu   sync.RWMutex
	last *CycleReport
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a Monitor.
func New(deps Deps, cfg Config, logger *zap.Logger, opts ...Option) *Monitor {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if deps.Batcher == nil {
		deps.Batcher = capture.NewBatcher(capture.DefaultBatchSize)
	}
	m := &Monitor{
		cfg:     cfg,
		source:  deps.Source,
		batcher: deps.Batcher,
		router:  deps.Router,
		gate:    deps.Gate,
		store:   deps.Store,
		sink:    deps.Sink,
		recall:  deps.Recall,
		metrics: deps.Metrics,
		now:     time.Now,
		logger:  logger,
		slot:    make(chan capture.Batch, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run drives the tick loop and the cycle worker until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return nil
	}
	defer m.running.Store(false)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.worker(ctx)
	}()

	ticker := time.NewTicker(m.cfg.FrameInterval)
	defer ticker.Stop()

	m.logger.Info("screen monitoring started",
		zap.Duration("interval", m.cfg.FrameInterval),
		zap.Int("batch_size", m.batcher.Size()))

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			m.logger.Info("screen monitoring stopped")
			return nil
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

func (m *Monitor) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-m.slot:
			m.RunCycle(ctx, b)
		}
	}
}

// Tick captures one frame, refreshes idle time and pushes the frame to the
// batcher. It reports whether a batch was handed to the worker.
func (m *Monitor) Tick(ctx context.Context) bool {
	frame, err := m.source.Capture(ctx)
	if err != nil || frame == nil {
		m.metrics.FrameSkipped()
		m.logger.Warn("frame capture failed", zap.Error(err))
		return false
	}
	m.captured.Add(1)
	m.metrics.FrameCaptured()

	m.updateIdle(ctx, m.now())

	res := m.batcher.Push(frame)
	if !res.Ready {
		m.logger.Debug("frame buffered",
			zap.Int("len", res.Len),
			zap.Int("capacity", res.Capacity))
		return false
	}
	return m.dispatch(res.Batch)
}

func (m *Monitor) updateIdle(ctx context.Context, now time.Time) {
	actx, err := m.store.GetContext(ctx)
	if err != nil {
		m.logger.Warn("read context failed", zap.Error(err))
		return
	}
	if err := m.store.UpdateIdleTime(ctx, now.Sub(actx.LastActivityAt)); err != nil {
		m.logger.Warn("update idle time failed", zap.Error(err))
	}
}

func (m *Monitor) dispatch(b capture.Batch) bool {
	select {
	case m.slot <- b:
		m.dispatched.Add(1)
		m.metrics.BatchDispatched()
		m.logger.Debug("batch dispatched",
			zap.String("batch", b.ID),
			zap.Uint64("seq", b.Seq))
		return true
	default:
		m.dropped.Add(1)
		m.metrics.BatchDropped()
		m.logger.Warn("cycle in flight, batch dropped",
			zap.String("batch", b.ID),
			zap.Uint64("seq", b.Seq))
		return false
	}
}

// Status reports counters and the last cycle.
func (m *Monitor) Status() Status {
	_, active := m.gate.Active()
	m.mu.RLock()
	last := m.last
	m.mu.RUnlock()
	return Status{
		Running:       m.running.Load(),
		FrameInterval: m.cfg.FrameInterval,
		BatchSize:     m.batcher.Size(),
		Pending:       m.batcher.Pending(),
		Captured:      m.captured.Load(),
		Dispatched:    m.dispatched.Load(),
		Dropped:       m.dropped.Load(),
		Cycles:        m.cycles.Load(),
		InFlight:      m.inFlight.Load(),
		ActiveSuggest: active,
		Last:          last,
	}
}
