package capture

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultBatchSize is the number of frames per classification batch.
const DefaultBatchSize = 15

// PushResult reports the batcher state after a Push.
type PushResult struct {
	Ready    bool
	Batch    Batch // set only when Ready
	Len      int
	Capacity int
}

// Batcher accumulates frames into fixed-size batches. It never blocks the
// capture side: when the buffer would exceed its capacity the oldest frames
// are dropped.
type Batcher struct {
	size   int
	buffer []*Frame
	seq    uint64
	mu     sync.Mutex
}

// NewBatcher creates a batcher emitting batches of exactly size frames.
// Sizes below 1 are raised to 1.
func NewBatcher(size int) *Batcher {
	if size < 1 {
		size = 1
	}
	return &Batcher{
		size:   size,
		buffer: make([]*Frame, 0, size),
	}
}

// Size returns the batch capacity.
func (b *Batcher) Size() int { return b.size }

// Push appends a frame. A nil frame is a failed capture and leaves the state
// untouched. When the buffer reaches capacity the batch is frozen, returned
// and the buffer starts a new cycle.
func (b *Batcher) Push(f *Frame) PushResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	if f == nil {
		return PushResult{Len: len(b.buffer), Capacity: b.size}
	}

	b.buffer = append(b.buffer, f)
	if over := len(b.buffer) - b.size; over > 0 {
		b.buffer = append(b.buffer[:0], b.buffer[over:]...)
	}

	if len(b.buffer) < b.size {
		return PushResult{Len: len(b.buffer), Capacity: b.size}
	}

	frames := make([]*Frame, len(b.buffer))
	copy(frames, b.buffer)
	b.buffer = b.buffer[:0]
	b.seq++

	return PushResult{
		Ready: true,
		Batch: Batch{
			ID:     uuid.New().String(),
			Seq:    b.seq,
			Frames: frames,
		},
		Len:      len(frames),
		Capacity: b.size,
	}
}

// Pending returns the number of frames accumulated in the current cycle.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

// Snapshot returns a copy of the frames accumulated so far, oldest first.
func (b *Batcher) Snapshot() []*Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Frame, len(b.buffer))
	copy(out, b.buffer)
	return out
}
