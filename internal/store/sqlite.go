package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/halotuses/ai-passport-app-sub000/internal/quizkey"
	"github.com/halotuses/ai-passport-app-sub000/internal/types"
)

// timeLayout is RFC 3339 with a fixed-width nanosecond fraction, so the
// lexicographic order of stored strings matches time order. All timestamps
// are stored in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// progressColumns is the canonical column list for progress_records scans.
const progressColumns = `quiz_id, chapter_numeric_id, unit_id, chapter_id, status,
	selected_choice_index, correct_choice_index, question_text, choice_texts, updated_at`

// SQLiteStore is the SQLite-backed progress and bookmark store.
type SQLiteStore struct {
	db       *sql.DB
	notifier *Notifier
}

// NewSQLiteStore opens (or creates) the store at dbPath through the guard's
// serial open path and runs migrations. A nil guard gets a private one.
func NewSQLiteStore(dbPath string, guard *Guard) (*SQLiteStore, error) {
	if guard == nil {
		guard = NewGuard()
	}

	db, err := guard.Open(dbPath)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	s.notifier = newNotifier(s)
	return s, nil
}

// Close cancels all live subscriptions and closes the database.
func (s *SQLiteStore) Close() error {
	s.notifier.closeAll()
	return s.db.Close()
}

// Events subscribes to the process-wide change broadcast. Every successful
// progress write publishes the affected chapter numeric id. The returned
// func unsubscribes.
func (s *SQLiteStore) Events() (<-chan ChangeEvent, func()) {
	return s.notifier.events()
}

// Observe returns a subscription delivering full snapshots: one immediately,
// then one per write affecting the filtered scope. A nil chapterNumericID
// observes all chapters, ordered by updated_at descending and bounded by
// limit (0 = unbounded). The caller must Cancel the subscription or it
// leaks.
func (s *SQLiteStore) Observe(chapterNumericID *int, limit int) *Subscription {
	return s.notifier.observe(chapterNumericID, limit)
}

// UpsertStatus loads the record at upd.QuizID or creates it, overwrites only
// the supplied fields (Status and UpdatedAt always), recomputes the chapter
// numeric id when chapter identity is supplied, and publishes a change
// notification scoped to the affected chapter.
func (s *SQLiteStore) UpsertStatus(ctx context.Context, upd types.StatusUpdate) error {
	if upd.QuizID == "" {
		return fmt.Errorf("%w: empty quiz id", ErrInvalidUpdate)
	}
	if !upd.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidUpdate, upd.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rec, err := getProgressTx(ctx, tx, upd.QuizID)
	switch {
	case err == nil:
		// existing record, partial update below
	case err == sql.ErrNoRows:
		fresh := newProgressRecord(upd.QuizID)
		rec = &fresh
	default:
		return fmt.Errorf("load record: %w", err)
	}

	rec.Status = upd.Status
	rec.UpdatedAt = upd.UpdatedAt.UTC()
	if upd.SelectedChoiceIndex != nil {
		rec.SelectedChoiceIndex = upd.SelectedChoiceIndex
	}
	if upd.CorrectChoiceIndex != nil {
		rec.CorrectChoiceIndex = upd.CorrectChoiceIndex
	}
	if upd.QuestionText != nil {
		rec.QuestionText = *upd.QuestionText
	}
	if upd.ChoiceTexts != nil {
		rec.ChoiceTexts = upd.ChoiceTexts
	}
	if upd.UnitID != nil || upd.ChapterID != nil {
		if upd.UnitID != nil {
			rec.UnitID = *upd.UnitID
		}
		if upd.ChapterID != nil {
			rec.ChapterID = *upd.ChapterID
		}
		rec.ChapterNumericID = quizkey.NumericChapterID(rec.UnitID, rec.ChapterID)
	}
	if upd.ChapterNumericID != nil {
		rec.ChapterNumericID = *upd.ChapterNumericID
	}

	if err := writeProgressTx(ctx, tx, rec); err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.notifier.publish(ChangeEvent{ChapterNumericID: rec.ChapterNumericID})
	return nil
}

// newProgressRecord builds a fresh record for quizID, deriving denormalized
// identity from the composite key when it parses. Unparseable keys carry the
// legacy sentinel so the repair pass can pick them up later.
func newProgressRecord(quizID string) types.ProgressRecord {
	rec := types.ProgressRecord{
		QuizID: quizID,
		UnitID: types.UnitUnknown,
		Status: types.StatusUnanswered,
	}
	if key, err := quizkey.Parse(quizID); err == nil && key.UnitID != "" && key.ChapterID != "" {
		rec.UnitID = key.UnitID
		rec.ChapterID = key.ChapterID
		rec.ChapterNumericID = quizkey.NumericChapterID(key.UnitID, key.ChapterID)
	}
	return rec
}

// Get returns the record at quizID, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, quizID string) (*types.ProgressRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM progress_records WHERE quiz_id = ?`, quizID)

	rec, err := scanProgress(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan row: %w", err)
	}
	return rec, nil
}

// LoadStatuses returns quiz id → status for one chapter. Degrades to an
// empty map on storage failure.
func (s *SQLiteStore) LoadStatuses(ctx context.Context, chapterNumericID int) map[string]types.AnswerStatus {
	statuses := make(map[string]types.AnswerStatus)

	rows, err := s.db.QueryContext(ctx,
		`SELECT quiz_id, status FROM progress_records WHERE chapter_numeric_id = ?`, chapterNumericID)
	if err != nil {
		logReadFailure("load_statuses_failed", err)
		return statuses
	}
	defer rows.Close()

	for rows.Next() {
		var quizID string
		var status types.AnswerStatus
		if err := rows.Scan(&quizID, &status); err != nil {
			logReadFailure("load_statuses_failed", err)
			return map[string]types.AnswerStatus{}
		}
		statuses[quizID] = status
	}
	if err := rows.Err(); err != nil {
		logReadFailure("load_statuses_failed", err)
		return map[string]types.AnswerStatus{}
	}

	return statuses
}

// QuestionProgresses returns every record in one chapter, ordered by quiz
// id. Degrades to nil on storage failure.
func (s *SQLiteStore) QuestionProgresses(ctx context.Context, chapterNumericID int) []types.ProgressRecord {
	recs, err := s.queryProgress(ctx,
		`SELECT `+progressColumns+` FROM progress_records
		 WHERE chapter_numeric_id = ? ORDER BY quiz_id`, chapterNumericID)
	if err != nil {
		logReadFailure("question_progresses_failed", err)
		return nil
	}
	return recs
}

// FetchHistory returns records ordered by updated_at descending, newest
// first, bounded by limit (0 = unbounded). Degrades to nil on failure.
func (s *SQLiteStore) FetchHistory(ctx context.Context, limit int) []types.ProgressRecord {
	query := `SELECT ` + progressColumns + ` FROM progress_records ORDER BY updated_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	recs, err := s.queryProgress(ctx, query, args...)
	if err != nil {
		logReadFailure("fetch_history_failed", err)
		return nil
	}
	return recs
}

// Count returns the number of records matching the filter's status and
// scope. Degrades to 0 on storage failure.
func (s *SQLiteStore) Count(ctx context.Context, filter CountFilter) int {
	where, args := filterClauses(filter)
	where = append([]string{"status = ?"}, where...)
	args = append([]any{string(filter.Status)}, args...)

	return s.countWhere(ctx, "count_failed", where, args)
}

// CountAnswered returns the number of answered (correct or incorrect)
// records matching the filter's scope. Degrades to 0 on storage failure.
func (s *SQLiteStore) CountAnswered(ctx context.Context, filter CountFilter) int {
	where, args := filterClauses(filter)
	where = append([]string{"status != ?"}, where...)
	args = append([]any{string(types.StatusUnanswered)}, args...)

	return s.countWhere(ctx, "count_answered_failed", where, args)
}

// CurrentCorrectStreak counts the run of consecutive correct records at the
// head of the updated_at-descending order, stopping at the first incorrect
// or unanswered record. An empty store yields 0. Degrades to 0 on failure.
func (s *SQLiteStore) CurrentCorrectStreak(ctx context.Context) int {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status FROM progress_records ORDER BY updated_at DESC`)
	if err != nil {
		logReadFailure("streak_failed", err)
		return 0
	}
	defer rows.Close()

	streak := 0
	for rows.Next() {
		var status types.AnswerStatus
		if err := rows.Scan(&status); err != nil {
			logReadFailure("streak_failed", err)
			return 0
		}
		if status != types.StatusCorrect {
			break
		}
		streak++
	}
	if err := rows.Err(); err != nil {
		logReadFailure("streak_failed", err)
		return 0
	}

	return streak
}

// DeleteProgress deletes records matching the union of chapter filters
// (all chapters when empty) intersected with the status filter (all
// statuses when empty).
func (s *SQLiteStore) DeleteProgress(ctx context.Context, chapters []types.ChapterIdentifier, statuses []types.AnswerStatus) error {
	var where []string
	var args []any

	if len(chapters) > 0 {
		var chapterClauses []string
		for _, ch := range chapters {
			chapterClauses = append(chapterClauses, "(unit_id = ? AND chapter_id = ?)")
			args = append(args, ch.UnitID, ch.ChapterID)
		}
		where = append(where, "("+strings.Join(chapterClauses, " OR ")+")")
	}

	if len(statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
		where = append(where, "status IN ("+placeholders+")")
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}

	query := "DELETE FROM progress_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}

	s.notifier.publish(ChangeEvent{All: true})
	return nil
}

// DeleteAllData removes every progress and bookmark record.
func (s *SQLiteStore) DeleteAllData(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM progress_records`); err != nil {
		return fmt.Errorf("delete progress records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bookmark_records`); err != nil {
		return fmt.Errorf("delete bookmark records: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.notifier.publish(ChangeEvent{All: true})
	return nil
}

// Stats returns the aggregate numbers for the inspection surfaces. Each
// component degrades independently.
func (s *SQLiteStore) Stats(ctx context.Context) types.StoreStats {
	stats := types.StoreStats{
		CorrectCount:    int64(s.Count(ctx, CountFilter{Status: types.StatusCorrect})),
		IncorrectCount:  int64(s.Count(ctx, CountFilter{Status: types.StatusIncorrect})),
		UnansweredCount: int64(s.Count(ctx, CountFilter{Status: types.StatusUnanswered})),
		CorrectStreak:   s.CurrentCorrectStreak(ctx),
	}
	stats.TotalRecords = stats.CorrectCount + stats.IncorrectCount + stats.UnansweredCount

	var bookmarks int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookmark_records WHERE is_bookmarked = 1`).Scan(&bookmarks)
	if err != nil {
		logReadFailure("stats_failed", err)
	}
	stats.BookmarkCount = bookmarks

	return stats
}

// --- internal helpers ---

func (s *SQLiteStore) countWhere(ctx context.Context, action string, where []string, args []any) int {
	query := "SELECT COUNT(*) FROM progress_records WHERE " + strings.Join(where, " AND ")

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		logReadFailure(action, err)
		return 0
	}
	return count
}

// filterClauses translates the optional CountFilter scopes to SQL.
func filterClauses(filter CountFilter) ([]string, []any) {
	var where []string
	var args []any

	if filter.ChapterNumericID != nil {
		where = append(where, "chapter_numeric_id = ?")
		args = append(args, *filter.ChapterNumericID)
	}
	if filter.UnitID != nil {
		where = append(where, "unit_id = ?")
		args = append(args, *filter.UnitID)
	}
	if filter.Chapter != nil {
		where = append(where, "unit_id = ?", "chapter_id = ?")
		args = append(args, filter.Chapter.UnitID, filter.Chapter.ChapterID)
	}

	return where, args
}

func (s *SQLiteStore) queryProgress(ctx context.Context, query string, args ...any) ([]types.ProgressRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []types.ProgressRecord
	for rows.Next() {
		rec, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return recs, nil
}

// getProgressTx loads one record inside a transaction. Returns
// sql.ErrNoRows unmapped so callers can branch on it.
func getProgressTx(ctx context.Context, tx *sql.Tx, quizID string) (*types.ProgressRecord, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM progress_records WHERE quiz_id = ?`, quizID)
	return scanProgress(row)
}

// writeProgressTx writes a full record, replacing any row at its key.
func writeProgressTx(ctx context.Context, tx *sql.Tx, rec *types.ProgressRecord) error {
	choiceJSON, err := json.Marshal(rec.ChoiceTexts)
	if err != nil {
		return fmt.Errorf("marshal choice texts: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO progress_records
			(quiz_id, chapter_numeric_id, unit_id, chapter_id, status,
			 selected_choice_index, correct_choice_index, question_text, choice_texts, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.QuizID, rec.ChapterNumericID, rec.UnitID, rec.ChapterID, string(rec.Status),
		nullableInt(rec.SelectedChoiceIndex), nullableInt(rec.CorrectChoiceIndex),
		rec.QuestionText, string(choiceJSON), rec.UpdatedAt.UTC().Format(timeLayout))
	return err
}

// scanProgress scans a row into a ProgressRecord, handling null choice
// indexes and the JSON-encoded choice texts.
func scanProgress(scanner interface{ Scan(...any) error }) (*types.ProgressRecord, error) {
	var rec types.ProgressRecord
	var selected, correct sql.NullInt64
	var choiceJSON, updatedAt string

	err := scanner.Scan(
		&rec.QuizID,
		&rec.ChapterNumericID,
		&rec.UnitID,
		&rec.ChapterID,
		&rec.Status,
		&selected,
		&correct,
		&rec.QuestionText,
		&choiceJSON,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if selected.Valid {
		v := int(selected.Int64)
		rec.SelectedChoiceIndex = &v
	}
	if correct.Valid {
		v := int(correct.Int64)
		rec.CorrectChoiceIndex = &v
	}

	if choiceJSON != "" {
		if err := json.Unmarshal([]byte(choiceJSON), &rec.ChoiceTexts); err != nil {
			return nil, fmt.Errorf("parse choice texts: %w", err)
		}
	}

	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		rec.UpdatedAt = t
	}

	return &rec, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// logReadFailure records a degraded read. The operation returns its zero
// value so UI-facing call sites show stale-but-consistent data instead of
// crashing.
func logReadFailure(action string, err error) {
	slog.Error("store read failed",
		"component", "store",
		"action", action,
		"error", err,
	)
}
