//go:build integration

package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("redis endpoint: %v", err)
	}
	return "redis://" + endpoint
}

func TestRedisSinkAndControl(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rdb, err := NewRedisClient(ctx, startRedis(t))
	if err != nil {
		t.Fatal(err)
	}
	defer rdb.Close()

	sink := NewRedisSink(rdb, zap.NewNop())
	if err := sink.Present(ctx, testSuggestion()); err != nil {
		t.Fatalf("Present: %v", err)
	}
	msgs, err := rdb.XRange(ctx, SuggestionStream, "-", "+").Result()
	if err != nil || len(msgs) != 1 {
		t.Fatalf("xrange: %v, %d messages", err, len(msgs))
	}
	var entry StreamEntry
	if err := json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.Type != "suggestion" || entry.Suggestion.Title != "I noticed an error" {
		t.Errorf("entry = %+v", entry)
	}

	ctl := NewRedisControl(rdb, zap.NewNop())
	subCtx, stop := context.WithCancel(ctx)
	defer stop()
	ch := ctl.Subscribe(subCtx)
	time.Sleep(200 * time.Millisecond)

	if err := ctl.Publish(ctx, Control{Kind: ControlApp, App: "Code"}); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-ch:
		if got.Kind != ControlApp || got.App != "Code" || got.At.IsZero() {
			t.Errorf("control = %+v", got)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no control received")
	}
}
