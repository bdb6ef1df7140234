package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_MissingFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	if s.MigrationCompleted() {
		t.Error("expected migration flag to default to false")
	}
}

func TestSetMigrationCompleted_PersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetMigrationCompleted(true); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reopened.MigrationCompleted() {
		t.Error("migration flag did not survive reopen")
	}
}

func TestUserID_MintedOnceAndStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	first, err := s.UserID()
	if err != nil {
		t.Fatal(err)
	}
	if first == "" {
		t.Fatal("expected a minted user id")
	}

	second, err := s.UserID()
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Errorf("user id changed between calls: %q vs %q", first, second)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	third, err := reopened.UserID()
	if err != nil {
		t.Fatal(err)
	}
	if third != first {
		t.Errorf("user id changed across reopen: %q vs %q", first, third)
	}
}

func TestOpen_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path); err == nil {
		t.Error("expected error for malformed settings file")
	}
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "settings.yaml")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetMigrationCompleted(true); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("settings file not created: %v", err)
	}
}
