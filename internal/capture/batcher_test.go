package capture

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func frameAt(i int) *Frame {
	return &Frame{
		Data:       []byte{byte(i)},
		CapturedAt: time.Unix(int64(i), 0),
		Width:      4,
		Height:     3,
	}
}

func TestBatcherEmitsExactlyOncePerN(t *testing.T) {
	const n = 15
	b := NewBatcher(n)

	var batches []Batch
	for i := 0; i < n*4; i++ {
		res := b.Push(frameAt(i))
		if res.Capacity != n {
			t.Fatalf("capacity = %d, want %d", res.Capacity, n)
		}
		if res.Ready {
			batches = append(batches, res.Batch)
			if (i+1)%n != 0 {
				t.Fatalf("batch ready after push %d, want multiples of %d", i+1, n)
			}
		} else if res.Len != (i+1)%n {
			t.Fatalf("push %d: len = %d, want %d", i+1, res.Len, (i+1)%n)
		}
	}

	if len(batches) != 4 {
		t.Fatalf("got %d batches, want 4", len(batches))
	}
	for bi, batch := range batches {
		if batch.Len() != n {
			t.Fatalf("batch %d has %d frames, want %d", bi, batch.Len(), n)
		}
		if batch.Seq != uint64(bi+1) {
			t.Errorf("batch %d seq = %d, want %d", bi, batch.Seq, bi+1)
		}
		if batch.ID == "" {
			t.Errorf("batch %d has empty id", bi)
		}
		for i := 1; i < batch.Len(); i++ {
			if !batch.Frames[i-1].CapturedAt.Before(batch.Frames[i].CapturedAt) {
				t.Fatalf("batch %d not oldest-first at %d", bi, i)
			}
		}
		if got := int(batch.Frames[0].Data[0]); got != bi*n {
			t.Errorf("batch %d starts with frame %d, want %d", bi, got, bi*n)
		}
	}
}

func TestBatcherSkipsNilFrames(t *testing.T) {
	b := NewBatcher(3)
	b.Push(frameAt(1))
	res := b.Push(nil)
	if res.Ready || res.Len != 1 {
		t.Fatalf("nil push changed state: %+v", res)
	}
	b.Push(frameAt(2))
	res = b.Push(frameAt(3))
	if !res.Ready {
		t.Fatal("expected batch after third real frame")
	}
	if b.Pending() != 0 {
		t.Errorf("pending = %d after dispatch, want 0", b.Pending())
	}
}

func TestBatcherMinimumSize(t *testing.T) {
	b := NewBatcher(0)
	if b.Size() != 1 {
		t.Fatalf("size = %d, want 1", b.Size())
	}
	if res := b.Push(frameAt(1)); !res.Ready || res.Batch.Len() != 1 {
		t.Fatalf("size-1 batcher should dispatch every frame: %+v", res)
	}
}

func TestBatchLatestAndSpan(t *testing.T) {
	var empty Batch
	if empty.Latest() != nil {
		t.Error("empty batch should have no latest frame")
	}
	batch := Batch{Frames: []*Frame{frameAt(1), frameAt(2), frameAt(5)}}
	if batch.Latest().Data[0] != 5 {
		t.Errorf("latest = %d, want 5", batch.Latest().Data[0])
	}
	first, last := batch.Span()
	if last.Sub(first) != 4*time.Second {
		t.Errorf("span = %v, want 4s", last.Sub(first))
	}
}

func TestDirSourceLoops(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png"} {
		var buf bytes.Buffer
		if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 6))); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o600)

	src, err := NewDirSource(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDirSource: %v", err)
	}
	for i := 0; i < 3; i++ {
		f, err := src.Capture(context.Background())
		if err != nil {
			t.Fatalf("capture %d: %v", i, err)
		}
		if f.Width != 8 || f.Height != 6 {
			t.Errorf("capture %d: size %dx%d, want 8x6", i, f.Width, f.Height)
		}
	}
}

func TestDirSourceEmpty(t *testing.T) {
	if _, err := NewDirSource(t.TempDir(), zap.NewNop()); err == nil {
		t.Fatal("expected error for empty directory")
	}
}
