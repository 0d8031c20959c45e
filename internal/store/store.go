// Package store keeps locally created events in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"eventclock/internal/model"
)

var (
	ErrNotFound     = errors.New("event not found")
	ErrInvalidEvent = errors.New("invalid event")
)

type Store struct {
	db  *sql.DB
	loc *time.Location
}

// Open opens (and migrates) the database at path. Events are returned in
// loc; nil means time.Local.
func Open(path string, loc *time.Location) (*Store, error) {
	if loc == nil {
		loc = time.Local
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Store{db: db, loc: loc}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			start_at TEXT NOT NULL,
			end_at TEXT,
			all_day INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_start_at ON events(start_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Create validates ev, assigns it a new ID and stores it. The stored event
// is returned with ID, UID, SourceID and InstanceKey filled in.
func (s *Store) Create(ctx context.Context, ev model.Event) (model.Event, error) {
	ev.Title = strings.TrimSpace(ev.Title)
	switch {
	case ev.Title == "":
		return model.Event{}, fmt.Errorf("%w: title is required", ErrInvalidEvent)
	case ev.Start.IsZero():
		return model.Event{}, fmt.Errorf("%w: start is required", ErrInvalidEvent)
	case ev.HasEnd() && ev.End.Before(ev.Start):
		return model.Event{}, fmt.Errorf("%w: end is before start", ErrInvalidEvent)
	}

	ev.ID = uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, title, description, location, start_at, end_at, all_day, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Title, ev.Description, ev.Location,
		formatTime(ev.Start), nullableTime(ev.End), boolToInt(ev.AllDay),
		formatTime(time.Now()),
	)
	if err != nil {
		return model.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return s.Get(ctx, ev.ID)
}

func (s *Store) Get(ctx context.Context, id string) (model.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, location, start_at, end_at, all_day FROM events WHERE id = ?`, id)
	ev, err := s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	return ev, err
}

// List returns all local events ordered by start.
func (s *Store) List(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, location, start_at, end_at, all_day FROM events ORDER BY start_at, title`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		ev, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Delete removes the event with the given ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scan(sc scanner) (model.Event, error) {
	var (
		ev       model.Event
		startRaw string
		endRaw   sql.NullString
		allDay   int
	)
	if err := sc.Scan(&ev.ID, &ev.Title, &ev.Description, &ev.Location, &startRaw, &endRaw, &allDay); err != nil {
		return model.Event{}, err
	}

	start, err := time.Parse(time.RFC3339Nano, startRaw)
	if err != nil {
		return model.Event{}, fmt.Errorf("event %s: bad start_at %q: %w", ev.ID, startRaw, err)
	}
	ev.Start = start.In(s.loc)
	if endRaw.Valid && endRaw.String != "" {
		end, err := time.Parse(time.RFC3339Nano, endRaw.String)
		if err != nil {
			return model.Event{}, fmt.Errorf("event %s: bad end_at %q: %w", ev.ID, endRaw.String, err)
		}
		ev.End = end.In(s.loc)
	}
	ev.AllDay = allDay != 0
	ev.SourceID = model.LocalSourceID
	ev.UID = ev.ID
	ev.InstanceKey = model.LocalSourceID + "/" + ev.ID
	return ev, nil
}

// timeLayout keeps a fixed-width fraction so stored text sorts in time
// order. time.RFC3339Nano parses it back.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
