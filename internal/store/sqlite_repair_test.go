package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/halotuses/ai-passport-app-sub000/internal/types"
)

func TestFlaggedForRepair(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	// Healthy record: parseable key, numeric id in range.
	answer(t, db, "unit1-chapter1#0", types.StatusCorrect, baseTime)
	// Unparseable key: carries the unknown-unit sentinel.
	answer(t, db, "opaque-legacy-token", types.StatusIncorrect, baseTime)
	// Parseable identity but sub-minimum numeric id (unit digits absent).
	answer(t, db, "abc-chapter7#0", types.StatusCorrect, baseTime)

	flagged, err := db.FlaggedForRepair(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(flagged) != 2 {
		t.Fatalf("flagged = %d, want 2", len(flagged))
	}
	// Ordered by quiz id.
	if flagged[0].QuizID != "abc-chapter7#0" || flagged[1].QuizID != "opaque-legacy-token" {
		t.Errorf("order = %s, %s", flagged[0].QuizID, flagged[1].QuizID)
	}
}

func TestApplyRepairs_RelocatesAtomically(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	answer(t, db, "opaque-legacy-token", types.StatusIncorrect, baseTime)

	corrected := types.ProgressRecord{
		QuizID:           "unit2-chapter4#1",
		ChapterNumericID: 2004,
		UnitID:           "unit2",
		ChapterID:        "chapter4",
		Status:           types.StatusIncorrect,
		UpdatedAt:        baseTime,
	}
	repairs := []RecordRepair{{SourceQuizID: "opaque-legacy-token", Record: corrected}}
	if err := db.ApplyRepairs(ctx, repairs); err != nil {
		t.Fatal(err)
	}

	if _, err := db.Get(ctx, "opaque-legacy-token"); !errors.Is(err, ErrNotFound) {
		t.Error("source record should be gone")
	}

	rec, err := db.Get(ctx, "unit2-chapter4#1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != types.StatusIncorrect || rec.ChapterNumericID != 2004 {
		t.Errorf("relocated record = %+v", rec)
	}
	if !rec.UpdatedAt.Equal(baseTime) {
		t.Errorf("updated at = %v, relocation must not bump timestamps", rec.UpdatedAt)
	}
}

func TestApplyRepairs_EmptyIsNoop(t *testing.T) {
	db := newTestStore(t)

	events, cancel := db.Events()
	defer cancel()

	if err := db.ApplyRepairs(context.Background(), nil); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-events:
		t.Errorf("unexpected event %+v for empty repair pass", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
