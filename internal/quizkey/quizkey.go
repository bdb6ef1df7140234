// Package quizkey converts between human-authored composite question keys
// ("<unitId>-<chapterId>#<index>") and the derived numeric chapter id used as
// a storage-native filter key.
package quizkey

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedKey indicates a composite key that does not parse.
	// Callers treat it as "no identity", never as fatal.
	ErrMalformedKey = errors.New("malformed quiz key")
)

// NoIndex is the QuestionIndex value for keys without an index suffix.
// Some callers only need unit/chapter identity, so a missing index is not
// a parse error.
const NoIndex = -1

// Key is the parsed form of a composite question key.
type Key struct {
	UnitID        string
	ChapterID     string
	QuestionIndex int
}

// HasIndex reports whether the key carried an index suffix.
func (k Key) HasIndex() bool {
	return k.QuestionIndex != NoIndex
}

// String recombines the key into the composite wire format. Keys without an
// index render without the "#" suffix, so Parse/String round-trips.
func (k Key) String() string {
	if !k.HasIndex() {
		return fmt.Sprintf("%s-%s", k.UnitID, k.ChapterID)
	}
	return fmt.Sprintf("%s-%s#%d", k.UnitID, k.ChapterID, k.QuestionIndex)
}

// Format builds a composite key string from its parts.
func Format(unitID, chapterID string, questionIndex int) string {
	return Key{UnitID: unitID, ChapterID: chapterID, QuestionIndex: questionIndex}.String()
}

// Parse splits a composite key on the first "#" (identity half vs index
// half), then on the first "-" inside the identity half (unit vs chapter).
// The identity half must yield exactly two non-empty-in-structure parts; the
// index half is optional.
func Parse(quizID string) (Key, error) {
	identity := quizID
	index := NoIndex

	if pos := strings.Index(quizID, "#"); pos >= 0 {
		identity = quizID[:pos]
		suffix := quizID[pos+1:]
		if suffix != "" {
			n, err := parseIndex(suffix)
			if err != nil {
				return Key{}, fmt.Errorf("%w: bad index %q", ErrMalformedKey, suffix)
			}
			index = n
		}
	}

	pos := strings.Index(identity, "-")
	if pos < 0 {
		return Key{}, fmt.Errorf("%w: %q has no unit-chapter separator", ErrMalformedKey, quizID)
	}

	return Key{
		UnitID:        identity[:pos],
		ChapterID:     identity[pos+1:],
		QuestionIndex: index,
	}, nil
}

// NumericChapterID derives the storage filter key from unit and chapter
// identifiers: the decimal digits of each string are accumulated into an
// integer (most-significant first, non-digits skipped, no digits yields 0)
// and combined as unit*1000+chapter.
//
// The scheme collides once a chapter number reaches 1000; that is accepted
// for small catalogs and must be preserved for compatibility with
// already-persisted records.
func NumericChapterID(unitID, chapterID string) int {
	return digits(unitID)*1000 + digits(chapterID)
}

// NumericChapterIDFromKey parses a composite key and derives its numeric
// chapter id. The second return is false when the key does not parse or
// lacks either identity component.
func NumericChapterIDFromKey(quizID string) (int, bool) {
	key, err := Parse(quizID)
	if err != nil {
		return 0, false
	}
	if key.UnitID == "" || key.ChapterID == "" {
		return 0, false
	}
	return NumericChapterID(key.UnitID, key.ChapterID), true
}

// digits accumulates every decimal digit of s into one integer.
func digits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n = n*10 + int(r-'0')
		}
	}
	return n
}

// parseIndex parses a non-negative decimal index without permitting the
// signs and whitespace strconv.Atoi tolerates.
func parseIndex(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-digit %q", r)
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
