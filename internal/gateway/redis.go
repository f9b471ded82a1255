package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/clippy/internal/activity"
)

// Redis stream keys.
const (
	SuggestionStream = "clippy:suggestions"
	ControlStream    = "clippy:control"
)

// streamMaxLen caps the suggestion stream.
const streamMaxLen = 1000

// StreamEntry is the payload written to SuggestionStream.
type StreamEntry struct {
	Type       string               `json:"type"` // "suggestion" or "state"
	State      State                `json:"state,omitempty"`
	Suggestion *activity.Suggestion `json:"suggestion,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
}

// NewRedisClient parses url and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// RedisSink publishes suggestions and state changes to a Redis stream so
// other local processes can render them.
type RedisSink struct {
	rdb    *redis.Client
	stream string
	logger *zap.Logger
}

// NewRedisSink creates a sink on rdb.
func NewRedisSink(rdb *redis.Client, logger *zap.Logger) *RedisSink {
	return &RedisSink{rdb: rdb, stream: SuggestionStream, logger: logger}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Present(ctx context.Context, sg activity.Suggestion) error {
	return s.publish(ctx, StreamEntry{Type: "suggestion", Suggestion: &sg, Timestamp: time.Now()})
}

func (s *RedisSink) SetState(ctx context.Context, st State) error {
	return s.publish(ctx, StreamEntry{Type: "state", State: st, Timestamp: time.Now()})
}

func (s *RedisSink) publish(ctx context.Context, e StreamEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": string(data)},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", s.stream, err)
	}
	s.logger.Debug("published", zap.String("stream", s.stream), zap.String("type", e.Type))
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisSink) Close() error { return nil }

// RedisControl reads user control signals (dismiss, activity, app changes)
// from a Redis stream.
type RedisControl struct {
	rdb    *redis.Client
	stream string
	logger *zap.Logger
}

// NewRedisControl creates a control reader on rdb.
func NewRedisControl(rdb *redis.Client, logger *zap.Logger) *RedisControl {
	return &RedisControl{rdb: rdb, stream: ControlStream, logger: logger}
}

// Publish writes a control signal.
func (c *RedisControl) Publish(ctx context.Context, ctl Control) error {
	if ctl.At.IsZero() {
		ctl.At = time.Now()
	}
	data, err := json.Marshal(ctl)
	if err != nil {
		return err
	}
	_, err = c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream,
		Values: map[string]interface{}{"data": string(data)},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", c.stream, err)
	}
	return nil
}

// Subscribe emits control signals published after the call. The channel is
// closed when ctx is cancelled.
func (c *RedisControl) Subscribe(ctx context.Context) <-chan Control {
	ch := make(chan Control, 16)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := c.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{c.stream, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if !errors.Is(err, redis.Nil) {
					c.logger.Warn("control stream read failed", zap.Error(err))
					select {
					case <-ctx.Done():
						return
					case <-time.After(time.Second):
					}
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ctl Control
					if err := json.Unmarshal([]byte(data), &ctl); err != nil {
						c.logger.Warn("bad control message", zap.String("id", msg.ID), zap.Error(err))
						continue
					}
					select {
					case ch <- ctl:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}
