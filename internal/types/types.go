package types

import (
	"encoding/json"
	"strings"
	"time"
)

// AnswerStatus represents the recorded outcome for a single question.
type AnswerStatus string

const (
	StatusUnanswered AnswerStatus = "unanswered"
	StatusCorrect    AnswerStatus = "correct"
	StatusIncorrect  AnswerStatus = "incorrect"
)

// Valid reports whether s is one of the known answer statuses.
func (s AnswerStatus) Valid() bool {
	switch s {
	case StatusUnanswered, StatusCorrect, StatusIncorrect:
		return true
	}
	return false
}

// UnitUnknown is the sentinel unit id carried by records written before the
// composite-key scheme existed. The repair pass treats it as "identity unset".
const UnitUnknown = "unknown"

// MinValidChapterNumericID is the smallest chapter numeric id the current
// keying scheme produces for a fully-identified record (unit*1000+chapter
// with a non-zero unit). Records below it predate the scheme.
const MinValidChapterNumericID = 1000

// ProgressRecord is the per-question progress row. At most one exists per
// quiz id; answer state is last-write-wins, not an attempt log.
type ProgressRecord struct {
	QuizID              string       `json:"quiz_id"`
	ChapterNumericID    int          `json:"chapter_numeric_id"`
	UnitID              string       `json:"unit_id"`
	ChapterID           string       `json:"chapter_id"`
	Status              AnswerStatus `json:"status"`
	SelectedChoiceIndex *int         `json:"selected_choice_index,omitempty"`
	CorrectChoiceIndex  *int         `json:"correct_choice_index,omitempty"`
	QuestionText        string       `json:"question_text"`
	ChoiceTexts         []string     `json:"choice_texts"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// Chapter returns the record's chapter identity.
func (r ProgressRecord) Chapter() ChapterIdentifier {
	return ChapterIdentifier{UnitID: r.UnitID, ChapterID: r.ChapterID}
}

// MarshalJSON ensures a nil ChoiceTexts marshals as [] not null.
func (r ProgressRecord) MarshalJSON() ([]byte, error) {
	if r.ChoiceTexts == nil {
		r.ChoiceTexts = []string{}
	}
	type Alias ProgressRecord
	return json.Marshal(Alias(r))
}

// BookmarkRecord is the per-question bookmark row for one learner identity.
// Bookmarks are toggled rather than deleted, so removal history stays
// representable by flipping IsBookmarked.
type BookmarkRecord struct {
	QuizID       string    `json:"quiz_id"`
	UserID       string    `json:"user_id"`
	IsBookmarked bool      `json:"is_bookmarked"`
	QuestionText string    `json:"question_text"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ChapterIdentifier identifies one chapter within one unit.
type ChapterIdentifier struct {
	UnitID    string `json:"unit_id"`
	ChapterID string `json:"chapter_id"`
}

// StatusUpdate carries one upsert into the progress store. Nil optional
// fields leave the stored values untouched; Status and UpdatedAt are always
// written.
type StatusUpdate struct {
	QuizID              string
	Status              AnswerStatus
	UpdatedAt           time.Time
	UnitID              *string
	ChapterID           *string
	SelectedChoiceIndex *int
	CorrectChoiceIndex  *int
	QuestionText        *string
	ChoiceTexts         []string
	// ChapterNumericID overrides the derived numeric id when set. Used by
	// the legacy import, whose rows may carry a numeric id but no parseable
	// identity.
	ChapterNumericID *int
}

// fingerprintSep separates choice texts inside a fingerprint. Unit separator,
// never present in authored content.
const fingerprintSep = "\x1f"

// Fingerprint is the structural identity of a question: its text plus its
// ordered choice texts. Comparable so it can key a lookup map.
type Fingerprint struct {
	Question string
	Choices  string
}

// NewFingerprint derives a fingerprint from question content. Returns false
// when the question text is empty; such records can never be relocated.
func NewFingerprint(questionText string, choiceTexts []string) (Fingerprint, bool) {
	if questionText == "" {
		return Fingerprint{}, false
	}
	return Fingerprint{
		Question: questionText,
		Choices:  strings.Join(choiceTexts, fingerprintSep),
	}, true
}

// StoreStats holds the aggregate numbers surfaced by the inspection API and
// the stats CLI verb.
type StoreStats struct {
	TotalRecords    int64 `json:"total_records"`
	CorrectCount    int64 `json:"correct_count"`
	IncorrectCount  int64 `json:"incorrect_count"`
	UnansweredCount int64 `json:"unanswered_count"`
	BookmarkCount   int64 `json:"bookmark_count"`
	CorrectStreak   int   `json:"correct_streak"`
}
