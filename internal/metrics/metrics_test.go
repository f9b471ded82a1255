package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.FrameCaptured()
	m.FrameCaptured()
	m.FrameSkipped()
	m.BatchDispatched()
	m.BatchDropped()
	m.Classified("error")
	m.Classified("error")
	m.Gated("admit")

	if v := testutil.ToFloat64(m.FramesCaptured); v != 2 {
		t.Errorf("frames captured = %v", v)
	}
	if v := testutil.ToFloat64(m.Classifications.WithLabelValues("error")); v != 2 {
		t.Errorf("error classifications = %v", v)
	}
	if v := testutil.ToFloat64(m.GateDecisions.WithLabelValues("admit")); v != 1 {
		t.Errorf("admit = %v", v)
	}

	done := m.CycleStarted()
	if v := testutil.ToFloat64(m.InFlight); v != 1 {
		t.Errorf("in flight = %v", v)
	}
	done()
	if v := testutil.ToFloat64(m.InFlight); v != 0 {
		t.Errorf("in flight after = %v", v)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.FrameCaptured()
	m.Classified("code")
	m.CycleStarted()()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("code = %d", rec.Code)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.BatchDispatched()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "clippy_batches_dispatched_total 1") {
		t.Errorf("metrics output missing counter:\n%s", body)
	}
}
