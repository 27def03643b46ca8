package journal

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

const insertSQL = `
		INSERT INTO commands (id, occurred_at, kind, preset, value, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`

func TestAppendFillsDefaults(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), KindSetPreset, "comfy", nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry, err := New(db).Append(context.Background(), Entry{Kind: " set_preset ", Preset: "comfy"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if entry.ID == "" {
		t.Fatalf("expected generated id")
	}
	if entry.OccurredAt.IsZero() || entry.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", entry.OccurredAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestAppendRequiresKind(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	if _, err := New(db).Append(context.Background(), Entry{}); err == nil {
		t.Fatalf("expected error for empty kind")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestAppendDBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	boom := errors.New("disk full")
	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).WillReturnError(boom)

	_, err = New(db).Append(context.Background(), Entry{Kind: KindSetHibernate, Value: "true"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestListScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "occurred_at", "kind", "preset", "value", "error"}).
		AddRow("b", "2025-01-02T10:00:00.000000000Z", KindSetTemperature, "comfy", "20.5", nil).
		AddRow("a", "2025-01-01T09:00:00.000000000Z", KindSetPreset, "cosy", nil, "cosy api error 500")
	mock.ExpectQuery(`SELECT id, occurred_at, kind, preset, value, error\s+FROM commands`).
		WithArgs(DefaultListLimit).
		WillReturnRows(rows)

	entries, err := New(db).List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Value != "20.5" || entries[0].Error != "" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Error != "cosy api error 500" || entries[1].Value != "" {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
	if want := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC); !entries[0].OccurredAt.Equal(want) {
		t.Fatalf("unexpected timestamp %v", entries[0].OccurredAt)
	}
}

func TestListClampsLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`FROM commands`).
		WithArgs(MaxListLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "occurred_at", "kind", "preset", "value", "error"}))

	if _, err := New(db).List(context.Background(), 10000); err != nil {
		t.Fatalf("List: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestOpenRoundTrip(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	first := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	if _, err := store.Append(ctx, Entry{OccurredAt: first, Kind: KindSetPreset, Preset: "slumber"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := store.Append(ctx, Entry{OccurredAt: first.Add(time.Minute), Kind: KindSetHibernate, Value: "true"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != KindSetHibernate || entries[1].Preset != "slumber" {
		t.Fatalf("unexpected order %+v", entries)
	}
}
