package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/clippy/internal/activity"
	"github.com/nidhogg/clippy/internal/capture"
	"github.com/nidhogg/clippy/internal/provider"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

type scriptedChat struct {
	content string
	err     error
	calls   int
	last    *provider.ChatRequest
}

func (s *scriptedChat) Route(_ context.Context, purpose string, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	s.calls++
	req.Purpose = purpose
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &provider.ChatResponse{Content: s.content}, nil
}

func batchOf(n int) capture.Batch {
	b := capture.Batch{ID: "b1"}
	for i := 0; i < n; i++ {
		b.Frames = append(b.Frames, &capture.Frame{Data: pngHeader, CapturedAt: time.Unix(int64(i), 0)})
	}
	return b
}

func TestClassifyNeverLeavesEnum(t *testing.T) {
	cases := map[string]string{
		"valid":   `{"classification":"error","confidence":0.9}`,
		"fenced":  "```json\n{\"classification\":\"research\",\"confidence\":0.6}\n```",
		"garbled": `Sure! {"classification": "writing", "confidence": 0.7`,
		"prose":   "I cannot tell.",
		"unknown": `{"classification":"gaming","confidence":0.9}`,
		"empty":   "",
	}
	for name, content := range cases {
		c := New(&scriptedChat{content: content}, zap.NewNop())
		got := c.Classify(context.Background(), batchOf(3))
		if !got.Label.Valid() {
			t.Errorf("%s: label %q outside enum", name, got.Label)
		}
		if got.Confidence < 0 || got.Confidence > 1 {
			t.Errorf("%s: confidence %v out of range", name, got.Confidence)
		}
	}
}

func TestClassifyParsesVariants(t *testing.T) {
	c := New(&scriptedChat{content: "```json\n{\"classification\":\"research\",\"confidence\":0.6}\n```"}, zap.NewNop())
	got := c.Classify(context.Background(), batchOf(2))
	if got.Label != activity.LabelResearch || got.Confidence != 0.6 {
		t.Errorf("got %+v", got)
	}

	c = New(&scriptedChat{content: `{"classification": "writing", "confidence": 0.7`}, zap.NewNop())
	got = c.Classify(context.Background(), batchOf(2))
	if got.Label != activity.LabelWriting || got.Confidence != 0.7 {
		t.Errorf("garbled: got %+v", got)
	}
}

func TestClassifyEmptyBatchSkipsModel(t *testing.T) {
	chat := &scriptedChat{content: `{"classification":"error"}`}
	got := New(chat, zap.NewNop()).Classify(context.Background(), capture.Batch{})
	if got != FailClosed {
		t.Errorf("got %+v, want fail closed", got)
	}
	if chat.calls != 0 {
		t.Errorf("model called %d times for empty batch", chat.calls)
	}
}

func TestClassifyTransportError(t *testing.T) {
	chat := &scriptedChat{err: errors.New("connection reset")}
	got := New(chat, zap.NewNop()).Classify(context.Background(), batchOf(15))
	if got != FailClosed {
		t.Errorf("got %+v, want fail closed", got)
	}
}

func TestClassifySendsFramesToClassifyPurpose(t *testing.T) {
	chat := &scriptedChat{content: `{"classification":"idle","confidence":0.4}`}
	New(chat, zap.NewNop()).Classify(context.Background(), batchOf(4))
	if chat.last.Purpose != provider.PurposeClassify {
		t.Errorf("got purpose %q", chat.last.Purpose)
	}
	if n := len(chat.last.Messages[0].Images); n != 4 {
		t.Errorf("got %d images, want 4", n)
	}
}

func TestParseDefaultsAndClamp(t *testing.T) {
	got, err := Parse(`{"classification":"ERROR"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Label != activity.LabelError || got.Confidence != DefaultConfidence {
		t.Errorf("got %+v, want error/0.5", got)
	}

	got, _ = Parse(`{"classification":"code","confidence":7}`)
	if got.Confidence != 1 {
		t.Errorf("got confidence %v, want clamped 1", got.Confidence)
	}

	got, _ = Parse(`{"classification":"idle","confidence":"0.3"}`)
	if got.Label != activity.LabelIdle || got.Confidence != 0.3 {
		t.Errorf("quoted confidence: got %+v", got)
	}

	if _, err := Parse(`{"confidence":0.9}`); !errors.Is(err, ErrNoLabel) {
		t.Errorf("got err %v, want ErrNoLabel", err)
	}
}
