package vectorstore

import (
	"testing"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
)

func TestPayloadRoundTrip(t *testing.T) {
	at := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	p := toPayload(map[string]any{
		"classification": "error",
		"confidence":     0.9,
		"batch_seq":      int64(3),
		"frames":         15,
		"admitted":       true,
		"captured_at":    at,
	})
	got := fromPayload(p)

	want := map[string]string{
		"classification": "error",
		"confidence":     "0.9",
		"batch_seq":      "3",
		"frames":         "15",
		"admitted":       "true",
		"captured_at":    "2026-01-01T09:00:00Z",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestToFilter(t *testing.T) {
	if f := toFilter(nil); f != nil {
		t.Errorf("empty match should give nil filter, got %v", f)
	}
	f := toFilter(map[string]string{"classification": "code"})
	if len(f.Must) != 1 {
		t.Fatalf("must = %d", len(f.Must))
	}
	field := f.Must[0].GetField()
	if field.GetKey() != "classification" {
		t.Errorf("key = %q", field.GetKey())
	}
	if kw, ok := field.GetMatch().GetMatchValue().(*pb.Match_Keyword); !ok || kw.Keyword != "code" {
		t.Errorf("match = %v", field.GetMatch())
	}
}
