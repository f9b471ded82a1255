package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nidhogg/clippy/internal/activity"
)

// Postgres is a ContextStore backed by a PostgreSQL connection pool.
type Postgres struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres connects to dsn and verifies the connection.
func NewPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &Postgres{db: pool, logger: logger}, nil
}

// Migrate applies the embedded PostgreSQL migrations in order.
func (s *Postgres) Migrate(ctx context.Context) error {
	files, stmts, err := migrationFiles("postgres")
	if err != nil {
		return err
	}
	for i, f := range files {
		if _, err := s.db.Exec(ctx, stmts[i]); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		s.logger.Info("Migration applied", zap.String("file", f))
	}
	return nil
}

func (s *Postgres) GetContext(ctx context.Context) (activity.Context, error) {
	var (
		out    activity.Context
		idleMS int64
	)
	err := s.db.QueryRow(ctx, `
		SELECT idle_ms, last_activity_at, current_app
		FROM activity_state WHERE id = 1`,
	).Scan(&idleMS, &out.LastActivityAt, &out.CurrentApp)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return activity.Context{}, fmt.Errorf("get activity state: %w", err)
	}
	out.IdleTime = time.Duration(idleMS) * time.Millisecond

	events, err := s.RecentEvents(ctx, activity.MaxRecentEvents)
	if err != nil {
		return activity.Context{}, err
	}
	out.RecentEvents = events
	return out, nil
}

func (s *Postgres) UpdateIdleTime(ctx context.Context, idle time.Duration) error {
	if idle < 0 {
		idle = 0
	}
	_, err := s.db.Exec(ctx, `UPDATE activity_state SET idle_ms = $1 WHERE id = 1`, idle.Milliseconds())
	if err != nil {
		return fmt.Errorf("update idle time: %w", err)
	}
	return nil
}

func (s *Postgres) MarkActivity(ctx context.Context, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE activity_state SET idle_ms = 0, last_activity_at = $1 WHERE id = 1`, at)
	if err != nil {
		return fmt.Errorf("mark activity: %w", err)
	}
	return nil
}

func (s *Postgres) SetCurrentApp(ctx context.Context, app string) error {
	_, err := s.db.Exec(ctx, `UPDATE activity_state SET current_app = $1 WHERE id = 1`, app)
	if err != nil {
		return fmt.Errorf("set current app: %w", err)
	}
	return nil
}

func (s *Postgres) AddEvent(ctx context.Context, e activity.Event) error {
	e = prepareEvent(e, time.Now())
	var metaJSON []byte
	if len(e.Metadata) > 0 {
		var err error
		metaJSON, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO events (id, classification, confidence, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		e.ID, string(e.Classification), e.Confidence, metaJSON, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("add event: %w", err)
	}
	return nil
}

func (s *Postgres) RecentEvents(ctx context.Context, limit int) ([]activity.Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, classification, confidence, metadata, created_at
		FROM events
		ORDER BY created_at DESC
		LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var events []activity.Event
	for rows.Next() {
		var (
			e        activity.Event
			label    string
			metaJSON []byte
		)
		if err := rows.Scan(&e.ID, &label, &e.Confidence, &metaJSON, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Classification = activity.Label(label)
		if len(metaJSON) > 0 {
			json.Unmarshal(metaJSON, &e.Metadata)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close shuts down the connection pool.
func (s *Postgres) Close() error {
	s.db.Close()
	return nil
}
