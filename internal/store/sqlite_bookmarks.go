package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/halotuses/ai-passport-app-sub000/internal/types"
)

// ToggleBookmark flips the bookmark state for quizID, creating the bookmark
// row on first toggle. Whenever the result is bookmarked, a companion
// unanswered ProgressRecord is ensured and the question text (and correct
// choice index, when known) is denormalized onto it so the question renders
// later without network access. Returns the new bookmark state.
func (s *SQLiteStore) ToggleBookmark(ctx context.Context, quizID, userID, questionText string, correctChoiceIndex *int) (bool, error) {
	if quizID == "" {
		return false, fmt.Errorf("%w: empty quiz id", ErrInvalidUpdate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var existing types.BookmarkRecord
	var createdAt string
	err = tx.QueryRowContext(ctx,
		`SELECT quiz_id, user_id, is_bookmarked, question_text, created_at
		 FROM bookmark_records WHERE quiz_id = ?`, quizID).
		Scan(&existing.QuizID, &existing.UserID, &existing.IsBookmarked, &existing.QuestionText, &createdAt)

	var bookmarked bool
	switch {
	case err == sql.ErrNoRows:
		bookmarked = true
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bookmark_records (quiz_id, user_id, is_bookmarked, question_text, created_at, updated_at)
			VALUES (?, ?, 1, ?, ?, ?)
		`, quizID, userID, questionText, now.Format(timeLayout), now.Format(timeLayout))
		if err != nil {
			return false, fmt.Errorf("insert bookmark: %w", err)
		}
	case err != nil:
		return false, fmt.Errorf("load bookmark: %w", err)
	default:
		bookmarked = !existing.IsBookmarked
		_, err = tx.ExecContext(ctx, `
			UPDATE bookmark_records
			SET is_bookmarked = ?, question_text = ?, updated_at = ?
			WHERE quiz_id = ?
		`, bookmarked, questionText, now.Format(timeLayout), quizID)
		if err != nil {
			return false, fmt.Errorf("update bookmark: %w", err)
		}
	}

	var affectedChapter *int
	if bookmarked {
		chapter, err := ensureCompanionProgress(ctx, tx, quizID, questionText, correctChoiceIndex, now)
		if err != nil {
			return false, err
		}
		affectedChapter = &chapter
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}

	if affectedChapter != nil {
		s.notifier.publish(ChangeEvent{ChapterNumericID: *affectedChapter})
	}
	return bookmarked, nil
}

// ensureCompanionProgress creates an unanswered ProgressRecord for quizID if
// none exists, and denormalizes question content onto whichever record ends
// up stored. Answer state on an existing record is left untouched. Returns
// the record's chapter numeric id for notification scoping.
func ensureCompanionProgress(ctx context.Context, tx *sql.Tx, quizID, questionText string, correctChoiceIndex *int, now time.Time) (int, error) {
	rec, err := getProgressTx(ctx, tx, quizID)
	switch {
	case err == sql.ErrNoRows:
		fresh := newProgressRecord(quizID)
		fresh.UpdatedAt = now
		rec = &fresh
	case err != nil:
		return 0, fmt.Errorf("load companion record: %w", err)
	}

	if questionText != "" {
		rec.QuestionText = questionText
	}
	if correctChoiceIndex != nil {
		rec.CorrectChoiceIndex = correctChoiceIndex
	}

	if err := writeProgressTx(ctx, tx, rec); err != nil {
		return 0, fmt.Errorf("write companion record: %w", err)
	}
	return rec.ChapterNumericID, nil
}

// Bookmarks returns the currently-bookmarked records for one learner,
// newest first. Degrades to nil on storage failure.
func (s *SQLiteStore) Bookmarks(ctx context.Context, userID string) []types.BookmarkRecord {
	rows, err := s.db.QueryContext(ctx, `
		SELECT quiz_id, user_id, is_bookmarked, question_text, created_at, updated_at
		FROM bookmark_records
		WHERE user_id = ? AND is_bookmarked = 1
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		logReadFailure("bookmarks_failed", err)
		return nil
	}
	defer rows.Close()

	var recs []types.BookmarkRecord
	for rows.Next() {
		var rec types.BookmarkRecord
		var createdAt, updatedAt string
		if err := rows.Scan(&rec.QuizID, &rec.UserID, &rec.IsBookmarked, &rec.QuestionText, &createdAt, &updatedAt); err != nil {
			logReadFailure("bookmarks_failed", err)
			return nil
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			rec.UpdatedAt = t
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		logReadFailure("bookmarks_failed", err)
		return nil
	}

	return recs
}

// DeleteAllBookmarks removes every bookmark row. Companion ProgressRecords
// are left untouched.
func (s *SQLiteStore) DeleteAllBookmarks(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bookmark_records`); err != nil {
		return fmt.Errorf("delete bookmarks: %w", err)
	}
	return nil
}
