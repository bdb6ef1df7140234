package quizkey

import (
	"errors"
	"testing"
)

func TestParse_FullKey(t *testing.T) {
	key, err := Parse("unit3-chapter12#4")
	if err != nil {
		t.Fatal(err)
	}
	if key.UnitID != "unit3" {
		t.Errorf("UnitID = %q, want %q", key.UnitID, "unit3")
	}
	if key.ChapterID != "chapter12" {
		t.Errorf("ChapterID = %q, want %q", key.ChapterID, "chapter12")
	}
	if key.QuestionIndex != 4 {
		t.Errorf("QuestionIndex = %d, want 4", key.QuestionIndex)
	}
}

func TestParse_MissingIndexIsNotAnError(t *testing.T) {
	for _, quizID := range []string{"unit3-chapter12", "unit3-chapter12#"} {
		key, err := Parse(quizID)
		if err != nil {
			t.Fatalf("Parse(%q): %v", quizID, err)
		}
		if key.HasIndex() {
			t.Errorf("Parse(%q): expected no index, got %d", quizID, key.QuestionIndex)
		}
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := []string{
		"unitonly",
		"unitonly#3",
		"u1-c1#abc",
		"u1-c1#-1",
	}
	for _, quizID := range cases {
		if _, err := Parse(quizID); !errors.Is(err, ErrMalformedKey) {
			t.Errorf("Parse(%q): expected ErrMalformedKey, got %v", quizID, err)
		}
	}
}

func TestParse_SplitsOnFirstSeparatorsOnly(t *testing.T) {
	// A literal "-" inside the chapter id lands in the chapter half; the
	// contract splits on the first "-" only.
	key, err := Parse("u1-c1-extra#0")
	if err != nil {
		t.Fatal(err)
	}
	if key.UnitID != "u1" || key.ChapterID != "c1-extra" {
		t.Errorf("got (%q,%q), want (%q,%q)", key.UnitID, key.ChapterID, "u1", "c1-extra")
	}
}

func TestParse_RoundTrip(t *testing.T) {
	cases := []string{
		"unit3-chapter12#4",
		"u1-c1#0",
		"unit3-chapter12",
		"a-b#10",
	}
	for _, quizID := range cases {
		key, err := Parse(quizID)
		if err != nil {
			t.Fatalf("Parse(%q): %v", quizID, err)
		}
		if got := key.String(); got != quizID {
			t.Errorf("round trip of %q produced %q", quizID, got)
		}
	}
}

func TestFormat(t *testing.T) {
	if got := Format("unit3", "chapter12", 4); got != "unit3-chapter12#4" {
		t.Errorf("Format = %q", got)
	}
}

func TestNumericChapterID(t *testing.T) {
	cases := []struct {
		unitID    string
		chapterID string
		want      int
	}{
		{"unit3", "chapter12", 3012},
		{"abc", "chapter1", 1},
		{"", "", 0},
		{"unit10", "chapter3", 10003},
		{"u1x2", "c3", 12003}, // digits accumulate across non-digit gaps
		{"chapter12", "", 12000},
	}
	for _, tc := range cases {
		if got := NumericChapterID(tc.unitID, tc.chapterID); got != tc.want {
			t.Errorf("NumericChapterID(%q,%q) = %d, want %d", tc.unitID, tc.chapterID, got, tc.want)
		}
	}
}

func TestNumericChapterIDFromKey(t *testing.T) {
	id, ok := NumericChapterIDFromKey("unit3-chapter12#4")
	if !ok || id != 3012 {
		t.Errorf("got (%d,%v), want (3012,true)", id, ok)
	}

	if _, ok := NumericChapterIDFromKey("garbage"); ok {
		t.Error("expected malformed key to yield ok=false")
	}

	// Parses, but one identity component is empty.
	if _, ok := NumericChapterIDFromKey("-c1#0"); ok {
		t.Error("expected missing unit id to yield ok=false")
	}
}
