package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nidhogg/clippy/internal/activity"
)

// SQLite is a ContextStore backed by a local SQLite file.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLite opens (creating if needed) the database at path and applies the
// embedded migrations. path may be ":memory:".
func NewSQLite(path string, logger *zap.Logger) (*SQLite, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLite{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	// A fresh database has never seen activity; count idle time from open.
	if _, err := db.Exec(`UPDATE activity_state SET last_activity_at = ? WHERE id = 1 AND last_activity_at = 0`,
		time.Now().UnixMilli()); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed activity state: %w", err)
	}
	logger.Info("SQLite opened", zap.String("path", path))
	return s, nil
}

func (s *SQLite) migrate() error {
	files, stmts, err := migrationFiles("sqlite")
	if err != nil {
		return err
	}
	for i, f := range files {
		if _, err := s.db.Exec(stmts[i]); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		s.logger.Debug("Migration applied", zap.String("file", f))
	}
	return nil
}

func (s *SQLite) GetContext(ctx context.Context) (activity.Context, error) {
	var (
		out            activity.Context
		idleMS, lastMS int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT idle_ms, last_activity_at, current_app
		FROM activity_state WHERE id = 1`,
	).Scan(&idleMS, &lastMS, &out.CurrentApp)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return activity.Context{}, fmt.Errorf("get activity state: %w", err)
	}
	out.IdleTime = time.Duration(idleMS) * time.Millisecond
	if lastMS > 0 {
		out.LastActivityAt = time.UnixMilli(lastMS)
	}

	events, err := s.RecentEvents(ctx, activity.MaxRecentEvents)
	if err != nil {
		return activity.Context{}, err
	}
	out.RecentEvents = events
	return out, nil
}

func (s *SQLite) UpdateIdleTime(ctx context.Context, idle time.Duration) error {
	if idle < 0 {
		idle = 0
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE activity_state SET idle_ms = ? WHERE id = 1`, idle.Milliseconds()); err != nil {
		return fmt.Errorf("update idle time: %w", err)
	}
	return nil
}

func (s *SQLite) MarkActivity(ctx context.Context, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE activity_state SET idle_ms = 0, last_activity_at = ? WHERE id = 1`, at.UnixMilli()); err != nil {
		return fmt.Errorf("mark activity: %w", err)
	}
	return nil
}

func (s *SQLite) SetCurrentApp(ctx context.Context, app string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE activity_state SET current_app = ? WHERE id = 1`, app); err != nil {
		return fmt.Errorf("set current app: %w", err)
	}
	return nil
}

func (s *SQLite) AddEvent(ctx context.Context, e activity.Event) error {
	e = prepareEvent(e, time.Now())
	var meta sql.NullString
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, classification, confidence, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, string(e.Classification), e.Confidence, meta, e.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("add event: %w", err)
	}
	return nil
}

func (s *SQLite) RecentEvents(ctx context.Context, limit int) ([]activity.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, classification, confidence, metadata, created_at
		FROM events
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var events []activity.Event
	for rows.Next() {
		var (
			e     activity.Event
			label string
			meta  sql.NullString
			atMS  int64
		)
		if err := rows.Scan(&e.ID, &label, &e.Confidence, &meta, &atMS); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Classification = activity.Label(label)
		e.Timestamp = time.UnixMilli(atMS)
		if meta.Valid {
			json.Unmarshal([]byte(meta.String), &e.Metadata)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
