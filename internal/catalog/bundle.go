package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// BundleProvider reads content documents from a directory of JSON files laid
// out the way the app ships them:
//
//	<dir>/units.json
//	<dir>/<unitID>/chapters.json
//	<dir>/<unitID>/<chapterID>/questions.json
type BundleProvider struct {
	dir string
}

// NewBundleProvider creates a provider over the given bundle directory.
func NewBundleProvider(dir string) *BundleProvider {
	return &BundleProvider{dir: dir}
}

// Units reads the unit-metadata document.
func (b *BundleProvider) Units() ([]UnitDoc, error) {
	var units []UnitDoc
	if err := b.readJSON(filepath.Join(b.dir, "units.json"), &units); err != nil {
		return nil, err
	}
	return units, nil
}

// Chapters reads the chapter list for one unit.
func (b *BundleProvider) Chapters(unitID string) ([]ChapterDoc, error) {
	var chapters []ChapterDoc
	if err := b.readJSON(filepath.Join(b.dir, unitID, "chapters.json"), &chapters); err != nil {
		return nil, err
	}
	return chapters, nil
}

// Questions reads the question list for one chapter.
func (b *BundleProvider) Questions(unitID, chapterID string) ([]QuestionDoc, error) {
	var questions []QuestionDoc
	if err := b.readJSON(filepath.Join(b.dir, unitID, chapterID, "questions.json"), &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

func (b *BundleProvider) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
