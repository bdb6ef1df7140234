// Package repair relocates progress records written under an obsolete
// identifier scheme. It runs opportunistically at store construction,
// best-effort: a failed pass is logged and never blocks normal operation.
package repair

import (
	"context"
	"errors"
	"log/slog"

	"github.com/halotuses/ai-passport-app-sub000/internal/catalog"
	"github.com/halotuses/ai-passport-app-sub000/internal/quizkey"
	"github.com/halotuses/ai-passport-app-sub000/internal/store"
	"github.com/halotuses/ai-passport-app-sub000/internal/types"
)

// Engine reconciles flagged records against the content fingerprint catalog.
type Engine struct {
	store    *store.SQLiteStore
	provider catalog.Provider
}

// New creates a repair engine over the given store and content provider.
func New(s *store.SQLiteStore, p catalog.Provider) *Engine {
	return &Engine{store: s, provider: p}
}

// Run executes one repair pass and returns the number of records relocated.
// All repairs commit in a single transaction; any failure aborts the whole
// pass, is logged, and yields 0. Running twice with no intervening writes is
// a no-op the second time.
func (e *Engine) Run(ctx context.Context) int {
	flagged, err := e.store.FlaggedForRepair(ctx)
	if err != nil {
		slog.Error("repair scan failed",
			"component", "repair",
			"action", "scan_failed",
			"error", err,
		)
		return 0
	}
	if len(flagged) == 0 {
		return 0
	}

	lookup := catalog.BuildLookup(e.provider)
	if len(lookup) == 0 {
		slog.Info("repair skipped, content catalog empty",
			"component", "repair",
			"action", "pass_skipped",
			"flagged", len(flagged),
		)
		return 0
	}

	plans, relocated := e.plan(ctx, flagged, lookup)
	if len(plans) == 0 {
		return 0
	}

	if err := e.store.ApplyRepairs(ctx, plans); err != nil {
		slog.Error("repair pass aborted, nothing committed",
			"component", "repair",
			"action", "pass_failed",
			"error", err,
		)
		return 0
	}

	slog.Info("repair pass completed",
		"component", "repair",
		"action", "pass_completed",
		"flagged", len(flagged),
		"relocated", relocated,
	)
	return relocated
}

// plan decides the corrected record for every relocatable flagged record.
// Flagged records whose fingerprint is absent from the catalog stay
// untouched. Multiple records converging on the same corrected key are
// merged before a single write is planned.
func (e *Engine) plan(ctx context.Context, flagged []types.ProgressRecord, lookup map[types.Fingerprint]catalog.Location) ([]store.RecordRepair, int) {
	targets := make(map[string]*types.ProgressRecord)
	sources := make(map[string][]string)
	relocated := 0

	for _, rec := range flagged {
		fp, ok := types.NewFingerprint(rec.QuestionText, rec.ChoiceTexts)
		if !ok {
			continue
		}
		loc, ok := lookup[fp]
		if !ok {
			continue
		}

		correctedID := quizkey.Format(loc.UnitID, loc.ChapterID, loc.QuestionIndex)

		target, seen := targets[correctedID]
		if !seen {
			candidate := rec
			existing, err := e.store.Get(ctx, correctedID)
			switch {
			case err == nil && existing.QuizID != rec.QuizID:
				// A record already lives at the corrected key: merge.
				candidate = merge(*existing, rec)
			case err != nil && !errors.Is(err, store.ErrNotFound):
				slog.Error("repair conflict lookup failed",
					"component", "repair",
					"action", "lookup_failed",
					"quiz_id", correctedID,
					"error", err,
				)
				return nil, 0
			}
			candidate = withIdentity(candidate, correctedID, loc)
			targets[correctedID] = &candidate
		} else {
			merged := merge(*target, rec)
			merged = withIdentity(merged, correctedID, loc)
			*target = merged
		}

		sources[correctedID] = append(sources[correctedID], rec.QuizID)
		relocated++
	}

	var plans []store.RecordRepair
	for correctedID, target := range targets {
		for _, src := range sources[correctedID] {
			plans = append(plans, store.RecordRepair{SourceQuizID: src, Record: *target})
		}
	}
	return plans, relocated
}

// merge resolves a key conflict: the record with the later UpdatedAt wins
// every answer-state field. Identity fields are overwritten afterwards by
// withIdentity regardless of the winner.
func merge(a, b types.ProgressRecord) types.ProgressRecord {
	winner := a
	if b.UpdatedAt.After(a.UpdatedAt) {
		winner = b
	}
	return winner
}

// withIdentity stamps the corrected identity onto a record.
func withIdentity(rec types.ProgressRecord, correctedID string, loc catalog.Location) types.ProgressRecord {
	rec.QuizID = correctedID
	rec.UnitID = loc.UnitID
	rec.ChapterID = loc.ChapterID
	rec.ChapterNumericID = quizkey.NumericChapterID(loc.UnitID, loc.ChapterID)
	return rec
}
