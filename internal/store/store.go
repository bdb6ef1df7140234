package store

import (
	"context"

	"github.com/halotuses/ai-passport-app-sub000/internal/types"
)

// Store defines the contract for progress and bookmark persistence.
//
// Write operations return errors; aggregate reads degrade to their zero
// value on storage failure (the failure is logged) so UI-facing call sites
// never crash on a bad disk.
type Store interface {
	UpsertStatus(ctx context.Context, upd types.StatusUpdate) error
	Get(ctx context.Context, quizID string) (*types.ProgressRecord, error)
	LoadStatuses(ctx context.Context, chapterNumericID int) map[string]types.AnswerStatus
	QuestionProgresses(ctx context.Context, chapterNumericID int) []types.ProgressRecord
	FetchHistory(ctx context.Context, limit int) []types.ProgressRecord
	Count(ctx context.Context, filter CountFilter) int
	CountAnswered(ctx context.Context, filter CountFilter) int
	CurrentCorrectStreak(ctx context.Context) int
	ToggleBookmark(ctx context.Context, quizID, userID, questionText string, correctChoiceIndex *int) (bool, error)
	Bookmarks(ctx context.Context, userID string) []types.BookmarkRecord
	DeleteProgress(ctx context.Context, chapters []types.ChapterIdentifier, statuses []types.AnswerStatus) error
	DeleteAllBookmarks(ctx context.Context) error
	DeleteAllData(ctx context.Context) error
	Stats(ctx context.Context) types.StoreStats
	Observe(chapterNumericID *int, limit int) *Subscription
	Events() (<-chan ChangeEvent, func())
	Close() error
}

// CountFilter narrows Count/CountAnswered queries. Nil fields apply no
// filter. Status is ignored by CountAnswered.
type CountFilter struct {
	Status           types.AnswerStatus
	ChapterNumericID *int
	UnitID           *string
	Chapter          *types.ChapterIdentifier
}
