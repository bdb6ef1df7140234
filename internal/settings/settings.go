// Package settings persists the small set of app-level flags the progress
// core consumes: the one-time migration marker and the generated learner
// identity token.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"
)

// values is the on-disk shape of the settings file.
type values struct {
	// MigrationCompleted marks the one-time legacy import as done.
	MigrationCompleted bool `yaml:"migration_completed"`
	// UserID is the opaque learner identity token, minted on first access.
	UserID string `yaml:"user_id,omitempty"`
	// UpdatedAt is when the file was last written.
	UpdatedAt time.Time `yaml:"updated_at"`
}

// Store is a file-backed settings store. Safe for concurrent use.
type Store struct {
	path string

	mu   sync.Mutex
	vals values
}

// Open loads the settings file at path, creating parent directories as
// needed. A missing file yields zero-valued settings.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create settings directory: %w", err)
		}
	}

	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, &s.vals); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}

	return s, nil
}

// MigrationCompleted reports whether the legacy import already ran.
func (s *Store) MigrationCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vals.MigrationCompleted
}

// SetMigrationCompleted persists the migration marker.
func (s *Store) SetMigrationCompleted(done bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals.MigrationCompleted = done
	return s.save()
}

// UserID returns the learner identity token, minting and persisting a new
// ULID on first access.
func (s *Store) UserID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vals.UserID != "" {
		return s.vals.UserID, nil
	}

	s.vals.UserID = ulid.Make().String()
	if err := s.save(); err != nil {
		s.vals.UserID = ""
		return "", err
	}
	return s.vals.UserID, nil
}

// save writes the settings file. Caller must hold mu.
func (s *Store) save() error {
	s.vals.UpdatedAt = time.Now().UTC()

	data, err := yaml.Marshal(&s.vals)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
