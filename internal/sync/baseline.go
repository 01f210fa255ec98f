package sync

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jmoiron/sqlx"

	"github.com/gileck/templatesync/internal/db"
)

const baselineSchema = `
CREATE TABLE IF NOT EXISTS baseline (
    path TEXT PRIMARY KEY,
    fingerprint TEXT NOT NULL,
    synced_at TEXT NOT NULL -- RFC3339
);

CREATE INDEX IF NOT EXISTS idx_baseline_fingerprint ON baseline(fingerprint);

CREATE TABLE IF NOT EXISTS manifest_base (
    path TEXT PRIMARY KEY,
    content BLOB NOT NULL,
    synced_at TEXT NOT NULL -- RFC3339
);
`

// BaselineEntry records the fingerprint a path had when it was last synced
// or acknowledged.
type BaselineEntry struct {
	Path        string `db:"path"`
	Fingerprint string `db:"fingerprint"`
	SyncedAt    string `db:"synced_at"`
}

// BaselineStore persists the baseline map in SQLite. Absence of a row means
// "no baseline": first sync, or never touched by this engine.
type BaselineStore struct {
	db     *sqlx.DB
	dbPath string
}

func NewBaselineStore(dbPath string) *BaselineStore {
	return &BaselineStore{dbPath: dbPath}
}

// Open the store and initialize the schema. An unreadable store is fatal for
// the whole run; callers must not mutate the filesystem after this fails.
func (s *BaselineStore) Open() error {
	if s.db != nil {
		return fmt.Errorf("baseline store already open")
	}

	database, err := db.NewSqliteDB(db.WithPath(s.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("open baseline store: %w", err)
	}

	if _, err := database.Exec(baselineSchema); err != nil {
		database.Close()
		return fmt.Errorf("initialize baseline schema: %w", err)
	}

	s.db = database
	return nil
}

func (s *BaselineStore) Close() error {
	if s.db == nil {
		return fmt.Errorf("baseline store not open")
	}
	if err := s.db.Close(); err != nil {
		slog.Error("failed to close baseline store", "error", err)
		return err
	}
	s.db = nil
	return nil
}

// Get retrieves the fingerprint for a path. Returns ("", false) when the path
// has no baseline.
func (s *BaselineStore) Get(path string) (string, bool, error) {
	var fingerprint string
	err := s.db.Get(&fingerprint, "SELECT fingerprint FROM baseline WHERE path = ?", path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("query baseline for %s: %w", path, err)
	}
	return fingerprint, true, nil
}

// Set inserts or refreshes the baseline for a path.
func (s *BaselineStore) Set(path, fingerprint string) error {
	if path == "" || fingerprint == "" {
		return fmt.Errorf("baseline path and fingerprint must be non-empty")
	}

	entry := BaselineEntry{
		Path:        path,
		Fingerprint: fingerprint,
		SyncedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	query := `INSERT OR REPLACE INTO baseline (path, fingerprint, synced_at)
	          VALUES (:path, :fingerprint, :synced_at)`
	if _, err := s.db.NamedExec(query, entry); err != nil {
		return fmt.Errorf("set baseline for %s: %w", path, err)
	}
	slog.Debug("baseline set", "path", path, "fingerprint", fingerprint)
	return nil
}

// Delete removes the baseline entry for a path.
func (s *BaselineStore) Delete(path string) error {
	if _, err := s.db.Exec("DELETE FROM baseline WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete baseline for %s: %w", path, err)
	}
	return nil
}

// GetState loads the whole baseline map.
func (s *BaselineStore) GetState() (map[string]string, error) {
	var entries []BaselineEntry
	if err := s.db.Select(&entries, "SELECT path, fingerprint, synced_at FROM baseline"); err != nil {
		return nil, fmt.Errorf("query baseline state: %w", err)
	}

	state := make(map[string]string, len(entries))
	for _, e := range entries {
		state[e.Path] = e.Fingerprint
	}
	return state, nil
}

// Count returns the number of baseline entries.
func (s *BaselineStore) Count() (int, error) {
	var count int
	if err := s.db.Get(&count, "SELECT COUNT(*) FROM baseline"); err != nil {
		return 0, fmt.Errorf("count baseline entries: %w", err)
	}
	return count, nil
}

// SetManifestBase records the template-side content of a manifest at sync
// time. It becomes the common ancestor for the next run's 3-way merge.
func (s *BaselineStore) SetManifestBase(path string, content []byte) error {
	if path == "" || len(content) == 0 {
		return fmt.Errorf("manifest base path and content must be non-empty")
	}

	query := `INSERT OR REPLACE INTO manifest_base (path, content, synced_at)
	          VALUES (?, ?, ?)`
	if _, err := s.db.Exec(query, path, content, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("set manifest base for %s: %w", path, err)
	}
	return nil
}

// GetManifestBase returns the stored manifest base content, or nil when the
// manifest has never been merged.
func (s *BaselineStore) GetManifestBase(path string) ([]byte, error) {
	var content []byte
	err := s.db.Get(&content, "SELECT content FROM manifest_base WHERE path = ?", path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query manifest base for %s: %w", path, err)
	}
	return content, nil
}

// Prune drops entries whose path is not in keep. Stale entries accumulate
// when paths leave the ownership patterns or the override list.
func (s *BaselineStore) Prune(keep mapset.Set[string]) (int, error) {
	paths := []string{}
	if err := s.db.Select(&paths, "SELECT path FROM baseline"); err != nil {
		return 0, fmt.Errorf("query baseline paths: %w", err)
	}

	pruned := 0
	for _, path := range paths {
		if keep.Contains(path) {
			continue
		}
		if err := s.Delete(path); err != nil {
			return pruned, err
		}
		pruned++
	}

	basePaths := []string{}
	if err := s.db.Select(&basePaths, "SELECT path FROM manifest_base"); err != nil {
		return pruned, fmt.Errorf("query manifest base paths: %w", err)
	}
	for _, path := range basePaths {
		if keep.Contains(path) {
			continue
		}
		if _, err := s.db.Exec("DELETE FROM manifest_base WHERE path = ?", path); err != nil {
			return pruned, fmt.Errorf("prune manifest base for %s: %w", path, err)
		}
		pruned++
	}

	if pruned > 0 {
		slog.Debug("baseline pruned", "entries", pruned)
	}
	return pruned, nil
}
