// Package legacy performs the one-time import from the pre-rewrite
// relational answer-history store into the progress store, then destroys
// the old file. Gated by a persisted completion flag, so it runs at most
// once per install.
package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/halotuses/ai-passport-app-sub000/internal/quizkey"
	"github.com/halotuses/ai-passport-app-sub000/internal/settings"
	"github.com/halotuses/ai-passport-app-sub000/internal/store"
	"github.com/halotuses/ai-passport-app-sub000/internal/types"
)

// Row is one legacy answer-history row.
type Row struct {
	QuizID     string         `db:"quiz_id"`
	ChapterID  sql.NullInt64  `db:"chapter_id"`
	IsCorrect  bool           `db:"is_correct"`
	AnsweredAt sql.NullString `db:"answered_at"`
}

// Bridge copies legacy rows into the progress store.
type Bridge struct {
	store      *store.SQLiteStore
	settings   *settings.Store
	legacyPath string
}

// New creates a bridge reading the legacy store at legacyPath.
func New(s *store.SQLiteStore, set *settings.Store, legacyPath string) *Bridge {
	return &Bridge{store: s, settings: set, legacyPath: legacyPath}
}

// Run executes the migration. No-op when the completion flag is already
// set. A failed fetch aborts without setting the flag, so the next startup
// retries; the per-row upsert is idempotent, so a crash mid-import is safe
// to re-run in full.
func (b *Bridge) Run(ctx context.Context) error {
	if b.settings.MigrationCompleted() {
		return nil
	}

	rows, err := b.fetchRows(ctx)
	if err != nil {
		return fmt.Errorf("fetch legacy rows: %w", err)
	}

	imported := 0
	for _, row := range rows {
		if err := b.importRow(ctx, row); err != nil {
			return fmt.Errorf("import row %s: %w", row.QuizID, err)
		}
		imported++
	}

	if err := b.settings.SetMigrationCompleted(true); err != nil {
		return fmt.Errorf("persist migration flag: %w", err)
	}

	if err := b.resetLegacyStore(); err != nil {
		// The flag is already set; the stale file is never read again, so
		// a failed teardown is only worth a warning.
		slog.Warn("legacy store teardown failed",
			"component", "legacy",
			"action", "teardown_failed",
			"path", b.legacyPath,
			"error", err,
		)
	}

	slog.Info("legacy migration completed",
		"component", "legacy",
		"action", "migration_completed",
		"imported", imported,
	)
	return nil
}

// fetchRows reads every legacy answer-history row. A missing legacy file
// yields zero rows (fresh install); any read failure propagates so the
// migration can be retried on the next startup.
func (b *Bridge) fetchRows(ctx context.Context) ([]Row, error) {
	if _, err := os.Stat(b.legacyPath); os.IsNotExist(err) {
		return nil, nil
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite", "file:"+b.legacyPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open legacy store: %w", err)
	}
	defer db.Close()

	var rows []Row
	if err := db.SelectContext(ctx, &rows,
		`SELECT quiz_id, chapter_id, is_correct, answered_at FROM answer_history`); err != nil {
		return nil, fmt.Errorf("select answer history: %w", err)
	}
	return rows, nil
}

// importRow upserts one legacy row into the progress store.
func (b *Bridge) importRow(ctx context.Context, row Row) error {
	status := types.StatusIncorrect
	if row.IsCorrect {
		status = types.StatusCorrect
	}

	upd := types.StatusUpdate{
		QuizID:    row.QuizID,
		Status:    status,
		UpdatedAt: parseAnsweredAt(row.AnsweredAt),
	}

	numeric := resolveChapterNumericID(row)
	upd.ChapterNumericID = &numeric

	return b.store.UpsertStatus(ctx, upd)
}

// resolveChapterNumericID prefers the row's own chapter id, then derivation
// from the composite key, then 0.
func resolveChapterNumericID(row Row) int {
	if row.ChapterID.Valid {
		return int(row.ChapterID.Int64)
	}
	if id, ok := quizkey.NumericChapterIDFromKey(row.QuizID); ok {
		return id
	}
	return 0
}

// parseAnsweredAt tolerates the timestamp formats the legacy store used.
// Unparseable values fall back to the import time.
func parseAnsweredAt(v sql.NullString) time.Time {
	if v.Valid {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, v.String); err == nil {
				return t
			}
		}
	}
	return time.Now().UTC()
}

// resetLegacyStore deletes the legacy file set and recreates an empty
// schema-bearing database, so any stale reader finds a valid empty store
// rather than a corrupt one.
func (b *Bridge) resetLegacyStore() error {
	if _, err := os.Stat(b.legacyPath); os.IsNotExist(err) {
		return nil
	}

	for _, p := range []string{b.legacyPath, b.legacyPath + "-wal", b.legacyPath + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}

	db, err := sqlx.Open("sqlite", b.legacyPath)
	if err != nil {
		return fmt.Errorf("recreate legacy store: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(legacySchema); err != nil {
		return fmt.Errorf("recreate legacy schema: %w", err)
	}
	return nil
}

// legacySchema is the old store's single table, kept only so the recreated
// file is a valid database.
const legacySchema = `
CREATE TABLE IF NOT EXISTS answer_history (
    quiz_id TEXT NOT NULL,
    chapter_id INTEGER,
    is_correct INTEGER NOT NULL DEFAULT 0,
    answered_at TEXT
);`
