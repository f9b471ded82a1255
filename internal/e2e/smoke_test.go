//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("CLIPPY_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:7777"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "server at %s not ready after 30s\n", baseURL)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func call(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, baseURL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return resp.StatusCode, raw
}

func TestHealth(t *testing.T) {
	code, raw := call(t, http.MethodGet, "/api/health", nil)
	if code != http.StatusOK || !strings.Contains(string(raw), `"ok"`) {
		t.Errorf("health: %d %s", code, raw)
	}
}

func TestStatusListsOverlay(t *testing.T) {
	code, raw := call(t, http.MethodGet, "/api/status", nil)
	if code != http.StatusOK {
		t.Fatalf("status: %d %s", code, raw)
	}
	if !strings.Contains(string(raw), `"overlay"`) {
		t.Errorf("overlay sink missing: %s", raw)
	}
	t.Logf("status: %.300s", raw)
}

func TestSignals(t *testing.T) {
	if code, raw := call(t, http.MethodPost, "/api/activity", nil); code != http.StatusOK {
		t.Errorf("activity: %d %s", code, raw)
	}
	code, raw := call(t, http.MethodPost, "/api/app", map[string]string{"app": "smoke-test"})
	if code != http.StatusOK || !strings.Contains(string(raw), "smoke-test") {
		t.Errorf("app: %d %s", code, raw)
	}
}

func TestDismiss(t *testing.T) {
	code, raw := call(t, http.MethodPost, "/api/suggestion/dismiss", nil)
	if code != http.StatusOK || !strings.Contains(string(raw), "dismissed") {
		t.Errorf("dismiss: %d %s", code, raw)
	}
	code, raw = call(t, http.MethodGet, "/api/suggestion/", nil)
	if code != http.StatusOK || !strings.Contains(string(raw), `"sleeping"`) {
		t.Errorf("overlay after dismiss: %d %s", code, raw)
	}
}

func TestEvents(t *testing.T) {
	code, raw := call(t, http.MethodGet, "/api/events?limit=3", nil)
	if code != http.StatusOK {
		t.Fatalf("events: %d %s", code, raw)
	}
	var events []map[string]any
	if err := json.Unmarshal(raw, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(events) > 3 {
		t.Errorf("limit ignored: %d events", len(events))
	}
}

func TestMetrics(t *testing.T) {
	code, raw := call(t, http.MethodGet, "/metrics", nil)
	if code != http.StatusOK || !strings.Contains(string(raw), "clippy_frames_captured_total") {
		t.Errorf("metrics: %d", code)
	}
}
