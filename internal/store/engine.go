// Package store implements the provenance-indexed storage engine: schema
// bootstrap and migration, CRUD per entity, cascade deletes, FTS/vector
// index maintenance, and the integrity/export/comparison surfaces built
// on top of them.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"docprovrag/internal/provenance"
)

var vecAutoOnce sync.Once

// Engine owns the single active database handle. Exactly one Engine is
// current at a time in the host process; switching databases is an
// atomic swap performed by Reopen.
type Engine struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
	prov *provenance.Tracker
}

// Status reports the health of the currently open database.
type Status struct {
	Path          string
	SchemaVersion int
	IndexStale    bool
	MissingTriggers []string
}

// Open opens (or creates) the database file at path, migrates it if
// necessary, and verifies required schema objects.
func Open(path string) (*Engine, error) {
	vecAutoOnce.Do(func() { sqlite_vec.Auto() })

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	var version string
	if err := db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: sqlite-vec not available: %w", err)
	}
	log.Printf("store: open path=%s sqlite_vec=%s", path, version)

	if err := createSchema(db, VectorDimension); err != nil {
		db.Close()
		return nil, err
	}

	result, err := migrateDatabase(db, path)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("store: schema from=%d to=%d migrated=%v skipped=%q backup=%q",
		result.FromVersion, result.ToVersion, result.Migrated, result.Skipped, result.BackupPath)

	if err := verifyRequiredObjects(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Engine{db: db, path: path, prov: provenance.New(db)}, nil
}

// DB returns the underlying handle for packages within this module that
// need to compose transactions (chunking pipeline, search, clustering).
func (e *Engine) DB() *sql.DB {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.db
}

// Provenance returns the tracker bound to this engine's handle.
func (e *Engine) Provenance() *provenance.Tracker {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.prov
}

// Path returns the currently open database file path.
func (e *Engine) Path() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.path
}

// Close releases the current handle.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

// Reopen swaps the active database file. Re-selecting the same path
// explicitly closes the prior connection first (to drop memory-mapped
// pages) before reopening; selecting a different path opens the new
// handle fully before closing the old one, so a failed open never
// leaves the Engine without a working database.
func (e *Engine) Reopen(path string) error {
	e.mu.Lock()
	samePath := path == e.path
	oldDB := e.db
	e.mu.Unlock()

	if samePath {
		if oldDB != nil {
			oldDB.Close()
		}
		fresh, err := Open(path)
		if err != nil {
			return err
		}
		e.mu.Lock()
		e.db, e.path, e.prov = fresh.db, fresh.path, fresh.prov
		e.mu.Unlock()
		return nil
	}

	fresh, err := Open(path)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.db, e.path, e.prov = fresh.db, fresh.path, fresh.prov
	e.mu.Unlock()
	if oldDB != nil {
		oldDB.Close()
	}
	return nil
}

// GetStatus reports schema_version and FTS trigger drift. Row counts are
// never used for drift detection: with triggers intact counts stay
// consistent by construction, so only the trigger set itself is checked.
func (e *Engine) GetStatus() (Status, error) {
	db := e.DB()
	version, err := readSchemaVersion(db)
	if err != nil {
		return Status{}, err
	}

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'trigger'`)
	if err != nil {
		return Status{}, fmt.Errorf("store: list triggers: %w", err)
	}
	defer rows.Close()

	present := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return Status{}, err
		}
		present[name] = true
	}

	var missing []string
	for _, want := range requiredFTSTriggers {
		if !present[want] {
			missing = append(missing, want)
		}
	}

	return Status{
		Path:            e.Path(),
		SchemaVersion:   version,
		IndexStale:      len(missing) > 0,
		MissingTriggers: missing,
	}, nil
}

// now is a small seam so callers across the package agree on the clock.
func now() time.Time { return time.Now().UTC() }
