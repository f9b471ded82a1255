package capture

import "time"

// Frame is one captured screen image.
//
// Frames are immutable once captured: Data is shared by reference between the
// batcher, the router and every agent, and none of them may modify it.
type Frame struct {
	// Data holds the encoded image (PNG).
	Data       []byte
	CapturedAt time.Time
	Width      int
	Height     int
}

// Batch is an ordered, oldest-first group of frames dispatched together for a
// single classification call.
type Batch struct {
	ID     string
	Seq    uint64
	Frames []*Frame
}

// Len returns the number of frames in the batch.
func (b Batch) Len() int { return len(b.Frames) }

// Empty reports whether the batch holds no frames.
func (b Batch) Empty() bool { return len(b.Frames) == 0 }

// Latest returns the most recently captured frame, or nil for an empty batch.
func (b Batch) Latest() *Frame {
	if len(b.Frames) == 0 {
		return nil
	}
	return b.Frames[len(b.Frames)-1]
}

// Span returns the capture time of the first and last frame.
func (b Batch) Span() (first, last time.Time) {
	if len(b.Frames) == 0 {
		return time.Time{}, time.Time{}
	}
	return b.Frames[0].CapturedAt, b.Frames[len(b.Frames)-1].CapturedAt
}
