package store

import (
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SkipReason names why a pre-migration backup was not taken.
type SkipReason string

const (
	SkipFreshDatabase  SkipReason = "fresh_database"
	SkipAlreadyCurrent SkipReason = "already_current"
	SkipSourceNotFound SkipReason = "source_not_found"
	SkipBackupExists   SkipReason = "backup_exists"
)

// MigrationResult reports what happened when a database was opened.
type MigrationResult struct {
	FromVersion int
	ToVersion   int
	Migrated    bool
	BackupPath  string
	Skipped     SkipReason
}

// snapshotRetention is the number of newest pre-migrate-v* files kept
// per database path.
const snapshotRetention = 5

// migration is one forward step in the ordered migration list. Index 0
// upgrades version 1 to version 2, and so on; TargetSchemaVersion is one
// more than the length of this list.
type migration struct {
	toVersion int
	apply     func(tx *sql.Tx) error
}

// migrations is intentionally empty at schema version 1: createSchema
// already builds the full current schema for fresh databases, and no
// prior version has shipped yet. Future schema changes append here.
var migrations []migration

func readSchemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`SELECT version FROM schema_version WHERE id = 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		// Table may not exist yet on a brand new file.
		if strings.Contains(err.Error(), "no such table") {
			return 0, nil
		}
		return 0, fmt.Errorf("store: read schema_version: %w", err)
	}
	return version, nil
}

// migrateDatabase runs pending migrations with a pre-migration snapshot.
// path is the live database file; it may be empty for in-memory
// databases, in which case backups are skipped.
func migrateDatabase(db *sql.DB, path string) (MigrationResult, error) {
	current, err := readSchemaVersion(db)
	if err != nil {
		return MigrationResult{}, err
	}

	result := MigrationResult{FromVersion: current, ToVersion: TargetSchemaVersion}

	if current == 0 {
		result.Skipped = SkipFreshDatabase
		return finalizeVersion(db, result)
	}
	if current >= TargetSchemaVersion {
		result.Skipped = SkipAlreadyCurrent
		result.ToVersion = current
		return result, nil
	}

	if path != "" && path != ":memory:" {
		backupPath, reason, err := snapshotBeforeMigration(path, current)
		if err != nil {
			return MigrationResult{}, err
		}
		result.BackupPath = backupPath
		result.Skipped = reason
	} else {
		result.Skipped = SkipSourceNotFound
	}

	for _, m := range migrations {
		if m.toVersion <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return MigrationResult{}, fmt.Errorf("store: begin migration tx: %w", err)
		}
		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return MigrationResult{}, fmt.Errorf("store: migration to v%d failed: %w", m.toVersion, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version = ?, updated_at = ? WHERE id = 1`, m.toVersion, time.Now().UTC()); err != nil {
			tx.Rollback()
			return MigrationResult{}, fmt.Errorf("store: update schema_version to v%d: %w", m.toVersion, err)
		}
		if err := tx.Commit(); err != nil {
			return MigrationResult{}, fmt.Errorf("store: commit migration to v%d: %w", m.toVersion, err)
		}
		current = m.toVersion
	}
	result.Migrated = true
	result.ToVersion = current

	if path != "" {
		pruneSnapshots(path)
	}
	return result, nil
}

func finalizeVersion(db *sql.DB, result MigrationResult) (MigrationResult, error) {
	now := time.Now().UTC()
	_, err := db.Exec(`INSERT INTO schema_version (id, version, created_at, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at`,
		TargetSchemaVersion, now, now)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("store: seed schema_version: %w", err)
	}
	result.ToVersion = TargetSchemaVersion
	return result, nil
}

// snapshotBeforeMigration copies the live file (and -wal/-shm companions
// if present) to <path>.pre-migrate-v<current>, refusing to overwrite an
// existing snapshot so the pristine earliest copy is preserved.
func snapshotBeforeMigration(path string, current int) (string, SkipReason, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", SkipSourceNotFound, nil
	}

	backupPath := fmt.Sprintf("%s.pre-migrate-v%d", path, current)
	if _, err := os.Stat(backupPath); err == nil {
		return backupPath, SkipBackupExists, nil
	}

	if err := copyFile(path, backupPath); err != nil {
		return "", "", fmt.Errorf("store: snapshot database: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		src := path + suffix
		if _, err := os.Stat(src); err == nil {
			_ = copyFile(src, backupPath+suffix)
		}
	}
	log.Printf("store: pre-migration snapshot written to %s", backupPath)
	return backupPath, "", nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// pruneSnapshots keeps the snapshotRetention newest pre-migrate-v*
// snapshots for path, deleting older ones by mtime.
func pruneSnapshots(path string) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("store: prune snapshots: read dir: %v", err)
		return
	}

	type snap struct {
		name    string
		modTime time.Time
	}
	var snaps []snap
	prefix := base + ".pre-migrate-v"
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		if strings.HasSuffix(e.Name(), "-wal") || strings.HasSuffix(e.Name(), "-shm") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		snaps = append(snaps, snap{name: e.Name(), modTime: info.ModTime()})
	}
	if len(snaps) <= snapshotRetention {
		return
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].modTime.After(snaps[j].modTime) })
	for _, s := range snaps[snapshotRetention:] {
		full := filepath.Join(dir, s.name)
		if err := os.Remove(full); err != nil {
			log.Printf("store: prune snapshot %s: %v", full, err)
			continue
		}
		for _, suffix := range []string{"-wal", "-shm"} {
			os.Remove(full + suffix)
		}
	}
}
