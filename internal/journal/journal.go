// Package journal records thermostat commands in a local SQLite database.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

// timeLayout is fixed width so occurred_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

const schemaCommands = `
CREATE TABLE IF NOT EXISTS commands (
    id TEXT PRIMARY KEY,
    occurred_at TEXT NOT NULL,
    kind TEXT NOT NULL,
    preset TEXT,
    value TEXT,
    error TEXT
);
`

const schemaCommandsIndex = `
CREATE INDEX IF NOT EXISTS commands_occurred_at ON commands (occurred_at);
`

// Command kinds.
const (
	KindSetTemperature = "set_temperature"
	KindSetPreset      = "set_preset"
	KindSetHibernate   = "set_hibernate"
)

// Entry is one issued command and its outcome. Error is empty on success.
type Entry struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Kind       string    `json:"kind"`
	Preset     string    `json:"preset,omitempty"`
	Value      string    `json:"value,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Store persists journal entries.
type Store struct {
	db *sql.DB
}

// New wraps an open database. The schema is not applied.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens or creates the SQLite file at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	store := New(db)
	if err := store.EnsureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// EnsureSchema creates the commands table if it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{schemaCommands, schemaCommandsIndex} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts an entry, filling in ID and OccurredAt when they are empty.
func (s *Store) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	} else {
		e.OccurredAt = e.OccurredAt.UTC()
	}
	e.Kind = strings.TrimSpace(e.Kind)
	if e.Kind == "" {
		return Entry{}, fmt.Errorf("journal entry kind is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commands (id, occurred_at, kind, preset, value, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.OccurredAt.Format(timeLayout),
		e.Kind,
		nullString(e.Preset),
		nullString(e.Value),
		nullString(e.Error),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert journal entry: %w", err)
	}
	return e, nil
}

// List returns up to limit entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, occurred_at, kind, preset, value, error
		FROM commands
		ORDER BY occurred_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e          Entry
			occurredAt string
			preset     sql.NullString
			value      sql.NullString
			errText    sql.NullString
		)
		if err := rows.Scan(&e.ID, &occurredAt, &e.Kind, &preset, &value, &errText); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.OccurredAt, err = time.Parse(timeLayout, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parse occurred_at %q: %w", occurredAt, err)
		}
		e.Preset = preset.String
		e.Value = value.String
		e.Error = errText.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
