package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestSearchCollectsAndCaches(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if q := r.URL.Query().Get("q"); q != "golang channels" {
			t.Errorf("got query %q", q)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"Heading":     "Go",
			"Abstract":    "Go is a programming language.",
			"AbstractURL": "https://go.dev",
			"RelatedTopics": []map[string]interface{}{
				{"Text": "Channels - typed conduits", "FirstURL": "https://go.dev/ref/spec#Channel_types"},
				{"Topics": []map[string]interface{}{
					{"Text": "Goroutines", "FirstURL": "https://go.dev/doc/effective_go#goroutines"},
					{"Text": "Select", "FirstURL": "https://go.dev/ref/spec#Select_statements"},
				}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL + "/", RatePerS: 100}, zap.NewNop())
	results, err := c.Search(context.Background(), "golang channels", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Title != "Go" || results[2].Title != "Goroutines" {
		t.Errorf("unexpected order: %+v", results)
	}

	if _, err := c.Search(context.Background(), "Golang Channels", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits != 1 {
		t.Errorf("got %d upstream hits, want 1 (cached)", hits)
	}
}

func TestSearchUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL + "/"}, zap.NewNop())
	if _, err := c.Search(context.Background(), "anything", 3); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	c := NewClient(Config{Endpoint: "http://unused/"}, zap.NewNop())
	results, err := c.Search(context.Background(), "  ", 3)
	if err != nil || results != nil {
		t.Errorf("got %v, %v; want nil, nil", results, err)
	}
}

func TestSearchCacheServesLargerLimit(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"Heading":     "Rust",
			"Abstract":    "Rust is a systems language.",
			"AbstractURL": "https://rust-lang.org",
			"RelatedTopics": []map[string]interface{}{
				{"Text": "Ownership - memory model", "FirstURL": "https://doc.rust-lang.org/book/ch04-00-understanding-ownership.html"},
				{"Text": "Borrowing - references", "FirstURL": "https://doc.rust-lang.org/book/ch04-02-references-and-borrowing.html"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL + "/", RatePerS: 100}, zap.NewNop())
	short, err := c.Search(context.Background(), "rust ownership", 1)
	if err != nil || len(short) != 1 {
		t.Fatalf("limit 1: got %d results, %v", len(short), err)
	}
	full, err := c.Search(context.Background(), "rust ownership", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(full) != 3 {
		t.Errorf("limit 3 after a cached limit 1: got %d results, want 3", len(full))
	}
	if hits != 1 {
		t.Errorf("got %d upstream hits, want 1 (cached)", hits)
	}
}
