package store

import (
	"context"
	"fmt"

	"github.com/halotuses/ai-passport-app-sub000/internal/types"
)

// RecordRepair relocates one flagged record: the row at SourceQuizID is
// removed and Record is written at its corrected key. A rename and a merge
// have the same storage shape; merging is decided by the repair engine.
type RecordRepair struct {
	SourceQuizID string
	Record       types.ProgressRecord
}

// FlaggedForRepair returns records written under an obsolete identifier
// scheme: unit id still the legacy sentinel, or a chapter numeric id below
// the minimum the current scheme produces.
func (s *SQLiteStore) FlaggedForRepair(ctx context.Context) ([]types.ProgressRecord, error) {
	return s.queryProgress(ctx,
		`SELECT `+progressColumns+` FROM progress_records
		 WHERE unit_id = ? OR chapter_numeric_id < ?
		 ORDER BY quiz_id`,
		types.UnitUnknown, types.MinValidChapterNumericID)
}

// ApplyRepairs applies every relocation inside a single transaction; any
// failure aborts the whole pass with nothing committed. A successful pass
// publishes an all-chapters change event.
func (s *SQLiteStore) ApplyRepairs(ctx context.Context, repairs []RecordRepair) error {
	if len(repairs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range repairs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM progress_records WHERE quiz_id = ?`, r.SourceQuizID); err != nil {
			return fmt.Errorf("delete source %s: %w", r.SourceQuizID, err)
		}
		rec := r.Record
		if err := writeProgressTx(ctx, tx, &rec); err != nil {
			return fmt.Errorf("write corrected %s: %w", rec.QuizID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.notifier.publish(ChangeEvent{All: true})
	return nil
}
