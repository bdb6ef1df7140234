package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Guard funnels every store-open, directory-preparation, and corruption
//-recovery operation through one serial section. Concurrent construction of
// store handles therefore never races on directory creation or file
// recovery. Callers block until their queued operation completes.
type Guard struct {
	mu          sync.Mutex
	defaultPath string
}

// NewGuard creates an unconfigured guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Configure sets the process-wide default storage location. Idempotent:
// the first non-empty path wins.
func (g *Guard) Configure(defaultPath string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.defaultPath == "" {
		g.defaultPath = defaultPath
	}
}

// DefaultPath returns the configured default storage location.
func (g *Guard) DefaultPath() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.defaultPath
}

// Open prepares the containing directory and opens the store file, running
// pragmas and migrations. On failure it deletes the existing file set and
// retries exactly once; a second failure propagates as ErrOpenFailed.
func (g *Guard) Open(path string) (*sql.DB, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if path == "" {
		path = g.defaultPath
	}
	if path == "" {
		return nil, fmt.Errorf("%w: no path configured", ErrOpenFailed)
	}

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("%w: create store directory: %v", ErrOpenFailed, err)
			}
		}
	}

	db, err := openAndPrepare(path)
	if err == nil {
		return db, nil
	}

	slog.Warn("store open failed, recovering by recreating the file",
		"component", "store",
		"action", "open_recovery",
		"path", path,
		"error", err,
	)

	if path != ":memory:" {
		removeStoreFiles(path)
	}

	db, retryErr := openAndPrepare(path)
	if retryErr != nil {
		return nil, fmt.Errorf("%w: %v (after recovery of: %v)", ErrOpenFailed, retryErr, err)
	}
	return db, nil
}

// openAndPrepare opens the database, applies pragmas, verifies integrity,
// and runs migrations.
func openAndPrepare(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection serializes writers ahead of SQLite's own locking and
	// keeps :memory: databases on a single backing instance.
	db.SetMaxOpenConns(1)

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := verifyIntegrity(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("integrity check: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// enablePragmas sets SQLite pragmas for performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// verifyIntegrity runs a quick corruption check so a damaged file is caught
// at open time rather than mid-operation.
func verifyIntegrity(db *sql.DB) error {
	var result string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("quick_check reported %q", result)
	}
	return nil
}

// removeStoreFiles deletes the database file and its WAL sidecars.
func removeStoreFiles(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove store file during recovery",
				"component", "store",
				"action", "recovery_remove_failed",
				"path", p,
				"error", err,
			)
		}
	}
}
