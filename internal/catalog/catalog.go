// Package catalog builds the content fingerprint lookup used by the repair
// pass: a map from (question text, ordered choice texts) to the question's
// canonical location in the bundled content.
package catalog

import (
	"log/slog"

	"github.com/halotuses/ai-passport-app-sub000/internal/types"
)

// Location is the canonical position of one question in the content bundle.
type Location struct {
	UnitID        string
	ChapterID     string
	QuestionIndex int
}

// UnitDoc is one unit in the bundled unit-metadata document.
type UnitDoc struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// ChapterDoc is one chapter in a unit's chapter list document.
type ChapterDoc struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// QuestionDoc is one question in a chapter's question list document.
type QuestionDoc struct {
	Text         string   `json:"text"`
	Choices      []string `json:"choices"`
	CorrectIndex int      `json:"correct_index"`
}

// Provider supplies the bundled content documents. Implementations may
// return an error for any individual document; the catalog is best-effort
// and skips what it cannot read.
type Provider interface {
	Units() ([]UnitDoc, error)
	Chapters(unitID string) ([]ChapterDoc, error)
	Questions(unitID, chapterID string) ([]QuestionDoc, error)
}

// BuildLookup walks the content bundle and maps every fingerprintable
// question to its location. Missing or undecodable documents are skipped;
// a partial catalog is valid. Questions with empty text never enter the map.
//
// The lookup is rebuilt on demand and never cached across repair runs.
func BuildLookup(p Provider) map[types.Fingerprint]Location {
	lookup := make(map[types.Fingerprint]Location)

	units, err := p.Units()
	if err != nil {
		slog.Debug("unit metadata unavailable, catalog empty",
			"component", "catalog",
			"action", "units_skipped",
			"error", err,
		)
		return lookup
	}

	for _, unit := range units {
		chapters, err := p.Chapters(unit.ID)
		if err != nil {
			slog.Debug("chapter list unavailable",
				"component", "catalog",
				"action", "chapters_skipped",
				"unit_id", unit.ID,
				"error", err,
			)
			continue
		}

		for _, chapter := range chapters {
			questions, err := p.Questions(unit.ID, chapter.ID)
			if err != nil {
				slog.Debug("question list unavailable",
					"component", "catalog",
					"action", "questions_skipped",
					"unit_id", unit.ID,
					"chapter_id", chapter.ID,
					"error", err,
				)
				continue
			}

			for i, q := range questions {
				fp, ok := types.NewFingerprint(q.Text, q.Choices)
				if !ok {
					continue
				}
				lookup[fp] = Location{
					UnitID:        unit.ID,
					ChapterID:     chapter.ID,
					QuestionIndex: i,
				}
			}
		}
	}

	return lookup
}
