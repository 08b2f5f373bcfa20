package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// nowUTC returns the current UTC time as an RFC 3339 string.
func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

// currentSchemaVersion is the target schema version for this build.
const currentSchemaVersion = schemaVersionV2

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and runs migrations.
// Creates the parent directory if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableCount == 0 {
		return s.freshInstall()
	}

	var v int
	err = s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		// schema_version exists but is empty: treat as v1.
		v = schemaVersionV1
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", v); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
	}

	switch v {
	case currentSchemaVersion:
		return nil
	case schemaVersionV1:
		return s.migrateV1ToV2()
	default:
		return fmt.Errorf("unknown schema version %d", v)
	}
}

func (s *SqlStore) freshInstall() error {
	if _, err := s.db.Exec(schemaV2); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", currentSchemaVersion); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

// migrateV1ToV2 runs inside a transaction so a failed migration leaves the
// v1 database untouched.
func (s *SqlStore) migrateV1ToV2() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migrationV1ToV2); err != nil {
		return fmt.Errorf("v1→v2 migration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration tx: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SqlStore) Close() error {
	return s.db.Close()
}

// Get returns the cached entry for k.
func (s *SqlStore) Get(k Key) (*Entry, error) {
	e := &Entry{}
	err := s.db.QueryRow(
		`SELECT dataset_hash, spec_hash, seed, run_id, created_at, payload
		 FROM fits WHERE id = ?`, k.ID(),
	).Scan(&e.Key.DatasetHash, &e.Key.SpecHash, &e.Key.Seed, &e.RunID, &e.CreatedAt, &e.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get fit: %w", err)
	}
	e.Size = len(e.Payload)
	return e, nil
}

// Put inserts or replaces the entry for e.Key. An empty CreatedAt is set to
// the current time.
func (s *SqlStore) Put(e *Entry) error {
	if e == nil {
		return errors.New("entry is nil")
	}
	created := e.CreatedAt
	if created == "" {
		created = nowUTC()
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO fits(id, dataset_hash, spec_hash, seed, run_id, created_at, payload)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		e.Key.ID(), e.Key.DatasetHash, e.Key.SpecHash, strconv.FormatUint(e.Key.Seed, 10), e.RunID, created, e.Payload,
	)
	if err != nil {
		return fmt.Errorf("put fit: %w", err)
	}
	return nil
}

// List returns entry metadata, newest first.
func (s *SqlStore) List() ([]*Entry, error) {
	rows, err := s.db.Query(
		`SELECT dataset_hash, spec_hash, seed, run_id, created_at, length(payload)
		 FROM fits ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list fits: %w", err)
	}
	defer rows.Close()
	var out []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.Key.DatasetHash, &e.Key.SpecHash, &e.Key.Seed, &e.RunID, &e.CreatedAt, &e.Size); err != nil {
			return nil, fmt.Errorf("scan fit: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InvalidateDataset deletes every entry fitted on datasetHash.
func (s *SqlStore) InvalidateDataset(datasetHash string) (int, error) {
	res, err := s.db.Exec("DELETE FROM fits WHERE dataset_hash = ?", datasetHash)
	if err != nil {
		return 0, fmt.Errorf("invalidate dataset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Clear deletes every entry.
func (s *SqlStore) Clear() (int, error) {
	res, err := s.db.Exec("DELETE FROM fits")
	if err != nil {
		return 0, fmt.Errorf("clear fits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
