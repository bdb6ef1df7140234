package legacy

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/halotuses/ai-passport-app-sub000/internal/settings"
	"github.com/halotuses/ai-passport-app-sub000/internal/store"
	"github.com/halotuses/ai-passport-app-sub000/internal/types"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	db, err := store.NewSQLiteStore(":memory:", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestSettings(t *testing.T) *settings.Store {
	t.Helper()

	set, err := settings.Open(filepath.Join(t.TempDir(), "settings.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	return set
}

// writeLegacyStore creates a legacy answer-history database at path.
func writeLegacyStore(t *testing.T, path string, rows [][4]any) {
	t.Helper()

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if _, err := db.Exec(legacySchema); err != nil {
		t.Fatal(err)
	}
	for _, row := range rows {
		_, err := db.Exec(
			`INSERT INTO answer_history (quiz_id, chapter_id, is_correct, answered_at) VALUES (?, ?, ?, ?)`,
			row[0], row[1], row[2], row[3])
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestRun_ImportsRows(t *testing.T) {
	db := newTestStore(t)
	set := newTestSettings(t)
	ctx := context.Background()

	legacyPath := filepath.Join(t.TempDir(), "answer_history.db")
	writeLegacyStore(t, legacyPath, [][4]any{
		{"unit1-chapter1#0", 1001, 1, "2025-03-01T10:00:00Z"},
		{"unit1-chapter1#1", nil, 0, "2025-03-01 10:05:00"},
	})

	bridge := New(db, set, legacyPath)
	if err := bridge.Run(ctx); err != nil {
		t.Fatal(err)
	}

	rec, err := db.Get(ctx, "unit1-chapter1#0")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != types.StatusCorrect {
		t.Errorf("status = %s, want correct", rec.Status)
	}
	if rec.ChapterNumericID != 1001 {
		t.Errorf("numeric id = %d, want 1001", rec.ChapterNumericID)
	}
	want := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	if !rec.UpdatedAt.Equal(want) {
		t.Errorf("updated at = %v, want %v", rec.UpdatedAt, want)
	}

	// Second row: chapter id derived from the key, space-separated timestamp.
	rec, err = db.Get(ctx, "unit1-chapter1#1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != types.StatusIncorrect {
		t.Errorf("status = %s, want incorrect", rec.Status)
	}
	if rec.ChapterNumericID != 1001 {
		t.Errorf("derived numeric id = %d, want 1001", rec.ChapterNumericID)
	}

	if !set.MigrationCompleted() {
		t.Error("completion flag should be set")
	}
}

func TestRun_SecondRunIsNoop(t *testing.T) {
	db := newTestStore(t)
	set := newTestSettings(t)
	ctx := context.Background()

	legacyPath := filepath.Join(t.TempDir(), "answer_history.db")
	writeLegacyStore(t, legacyPath, [][4]any{
		{"unit1-chapter1#0", 1001, 1, "2025-03-01T10:00:00Z"},
	})

	bridge := New(db, set, legacyPath)
	if err := bridge.Run(ctx); err != nil {
		t.Fatal(err)
	}

	// Alter the imported record, then run again: the flag gates the
	// import, so nothing is overwritten.
	err := db.UpsertStatus(ctx, types.StatusUpdate{
		QuizID:    "unit1-chapter1#0",
		Status:    types.StatusIncorrect,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := bridge.Run(ctx); err != nil {
		t.Fatal(err)
	}

	rec, err := db.Get(ctx, "unit1-chapter1#0")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != types.StatusIncorrect {
		t.Errorf("status = %s, second run must not re-import", rec.Status)
	}
}

func TestRun_MissingLegacyFile(t *testing.T) {
	db := newTestStore(t)
	set := newTestSettings(t)
	ctx := context.Background()

	legacyPath := filepath.Join(t.TempDir(), "answer_history.db")

	bridge := New(db, set, legacyPath)
	if err := bridge.Run(ctx); err != nil {
		t.Fatal(err)
	}

	if got := db.FetchHistory(ctx, 0); len(got) != 0 {
		t.Errorf("records imported from a missing file: %v", got)
	}
	if !set.MigrationCompleted() {
		t.Error("a fresh install still completes the migration")
	}
}

func TestRun_FetchFailureLeavesFlagUnset(t *testing.T) {
	db := newTestStore(t)
	set := newTestSettings(t)
	ctx := context.Background()

	// A file with no answer_history table makes the select fail.
	legacyPath := filepath.Join(t.TempDir(), "answer_history.db")
	broken, err := sqlx.Open("sqlite", legacyPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := broken.Exec(`CREATE TABLE unrelated (x INTEGER)`); err != nil {
		t.Fatal(err)
	}
	broken.Close()

	bridge := New(db, set, legacyPath)
	if err := bridge.Run(ctx); err == nil {
		t.Fatal("expected error from broken legacy store")
	}

	if set.MigrationCompleted() {
		t.Error("flag must stay unset so the next startup retries")
	}
}

func TestRun_ResetsLegacyStore(t *testing.T) {
	db := newTestStore(t)
	set := newTestSettings(t)
	ctx := context.Background()

	legacyPath := filepath.Join(t.TempDir(), "answer_history.db")
	writeLegacyStore(t, legacyPath, [][4]any{
		{"unit1-chapter1#0", 1001, 1, "2025-03-01T10:00:00Z"},
	})

	if err := New(db, set, legacyPath).Run(ctx); err != nil {
		t.Fatal(err)
	}

	// The legacy file is recreated empty but schema-bearing.
	legacy, err := sqlx.Open("sqlite", legacyPath)
	if err != nil {
		t.Fatal(err)
	}
	defer legacy.Close()

	var count int
	if err := legacy.Get(&count, `SELECT COUNT(*) FROM answer_history`); err != nil {
		t.Fatalf("recreated legacy store unusable: %v", err)
	}
	if count != 0 {
		t.Errorf("legacy rows remain after teardown: %d", count)
	}
}
