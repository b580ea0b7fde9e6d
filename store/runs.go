package store

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultRunLimit bounds ListRuns when the caller passes no limit.
const DefaultRunLimit = 20

// Messages is a string list stored as a JSON array.
type Messages []string

// Value implements driver.Valuer.
func (m Messages) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *Messages) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Messages{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("messages: unsupported type %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("messages: %w", err)
	}
	*m = out
	return nil
}

// Run is one finished pipeline execution.
type Run struct {
	ID          string    `db:"id" json:"id"`
	Trigger     string    `db:"trigger_kind" json:"trigger"`
	StartedAt   time.Time `db:"started_at" json:"started_at"`
	FinishedAt  time.Time `db:"finished_at" json:"finished_at"`
	Outcome     string    `db:"outcome" json:"outcome"`
	Stage       string    `db:"stage" json:"stage"`
	Topic       string    `db:"topic" json:"topic,omitempty"`
	Title       string    `db:"title" json:"title,omitempty"`
	ImagePrompt string    `db:"image_prompt" json:"image_prompt,omitempty"`
	ImageURL    string    `db:"image_url" json:"image_url,omitempty"`
	ItemID      string    `db:"item_id" json:"item_id,omitempty"`
	Errors      Messages  `db:"errors" json:"errors"`
}

const runColumns = `id, trigger_kind, started_at, finished_at, outcome, stage,
	topic, title, image_prompt, image_url, item_id, errors`

// RecordRun appends a run to the history.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()
	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES (:id, :trigger_kind, :started_at, :finished_at, :outcome, :stage,
			:topic, :title, :image_prompt, :image_url, :item_id, :errors)
	`
	if _, err := s.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	runs := []Run{}
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}
