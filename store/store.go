// Package store persists the producer settings, the schedule state and the
// run history in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"automagick_post_producer/schedule"
)

// ErrNotFound is returned when a single-row record was never saved.
var ErrNotFound = errors.New("not found")

// Store wraps the database handle.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows one writer; a single connection keeps writes serialized.
	db.SetMaxOpenConns(1)

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// New wraps an existing handle without touching the schema.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			api_key TEXT NOT NULL DEFAULT '',
			topic_prompt TEXT NOT NULL DEFAULT '',
			image_style_prompt TEXT NOT NULL DEFAULT '',
			frequency TEXT NOT NULL DEFAULT 'daily',
			time_of_day TEXT NOT NULL DEFAULT '00:00',
			post_type TEXT NOT NULL DEFAULT 'post',
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS schedule_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			frequency TEXT NOT NULL,
			time_of_day TEXT NOT NULL,
			next_run TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			trigger_kind TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL,
			outcome TEXT NOT NULL,
			stage TEXT NOT NULL,
			topic TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			image_prompt TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			item_id TEXT NOT NULL DEFAULT '',
			errors TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Settings is the persisted producer configuration. APIKey holds the
// encrypted credential and never leaves the process.
type Settings struct {
	APIKey      string    `db:"api_key" json:"-"`
	TopicPrompt string    `db:"topic_prompt" json:"topic_prompt"`
	ImageStyle  string    `db:"image_style_prompt" json:"image_style_prompt"`
	Frequency   string    `db:"frequency" json:"frequency"`
	TimeOfDay   string    `db:"time_of_day" json:"time_of_day"`
	ContentType string    `db:"post_type" json:"post_type"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

const settingsColumns = `api_key, topic_prompt, image_style_prompt, frequency, time_of_day, post_type, updated_at`

// LoadSettings returns ErrNotFound before the first save.
func (s *Store) LoadSettings(ctx context.Context) (Settings, error) {
	var out Settings
	err := s.db.GetContext(ctx, &out, `SELECT `+settingsColumns+` FROM settings WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, ErrNotFound
	}
	if err != nil {
		return Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	return out, nil
}

// SaveSettings replaces the settings row and stamps UpdatedAt.
func (s *Store) SaveSettings(ctx context.Context, in Settings) (Settings, error) {
	in.UpdatedAt = s.now().UTC()
	query := `
		INSERT INTO settings (id, ` + settingsColumns + `)
		VALUES (1, :api_key, :topic_prompt, :image_style_prompt, :frequency, :time_of_day, :post_type, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			api_key = excluded.api_key,
			topic_prompt = excluded.topic_prompt,
			image_style_prompt = excluded.image_style_prompt,
			frequency = excluded.frequency,
			time_of_day = excluded.time_of_day,
			post_type = excluded.post_type,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.NamedExecContext(ctx, query, in); err != nil {
		return Settings{}, fmt.Errorf("failed to save settings: %w", err)
	}
	return in, nil
}

// LoadScheduleState returns ErrNotFound when nothing is scheduled.
func (s *Store) LoadScheduleState(ctx context.Context) (schedule.State, error) {
	var st schedule.State
	err := s.db.GetContext(ctx, &st, `SELECT frequency, time_of_day, next_run FROM schedule_state WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.State{}, ErrNotFound
	}
	if err != nil {
		return schedule.State{}, fmt.Errorf("failed to load schedule state: %w", err)
	}
	return st, nil
}

// SaveScheduleState replaces the schedule state.
func (s *Store) SaveScheduleState(ctx context.Context, st schedule.State) error {
	st.NextRun = st.NextRun.UTC()
	query := `
		INSERT INTO schedule_state (id, frequency, time_of_day, next_run)
		VALUES (1, :frequency, :time_of_day, :next_run)
		ON CONFLICT (id) DO UPDATE SET
			frequency = excluded.frequency,
			time_of_day = excluded.time_of_day,
			next_run = excluded.next_run
	`
	if _, err := s.db.NamedExecContext(ctx, query, st); err != nil {
		return fmt.Errorf("failed to save schedule state: %w", err)
	}
	return nil
}

// ClearScheduleState forgets the pending firing.
func (s *Store) ClearScheduleState(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM schedule_state WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to clear schedule state: %w", err)
	}
	return nil
}
