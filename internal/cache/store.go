package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"confsentry/internal/pipeline"
)

// Store is the sqlite-backed criteria cache. Safe for concurrent use by
// independent pipeline runs: lookups and stores are serialized by the
// mutex, and a racing store for the same fingerprint is last-write-wins,
// which is acceptable because entries are derived deterministically from
// the same asset class.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Entry is one persisted cache row.
type Entry struct {
	FingerprintHash string               `json:"fingerprint_hash"`
	Vendor          string               `json:"vendor"`
	OSType          string               `json:"os_type"`
	Role            string               `json:"role"`
	Checks          pipeline.CriteriaSet `json:"checks"`
	CreatedAt       time.Time            `json:"created_at"`
}

// Stats summarizes cache contents.
type Stats struct {
	Entries int       `json:"entries"`
	Oldest  time.Time `json:"oldest,omitempty"`
	Newest  time.Time `json:"newest,omitempty"`
}

// Open opens or creates the cache database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	// WAL mode for concurrent readers.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: set busy_timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS criteria_cache (
		fingerprint_hash TEXT PRIMARY KEY,
		vendor           TEXT NOT NULL,
		os_type          TEXT NOT NULL,
		role             TEXT NOT NULL,
		checks           TEXT NOT NULL,
		created_at       TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the criteria set cached for the asset class, or ok=false
// on a miss. A hit whose stored checks fail to decode or carry duplicate
// check_ids is treated as a miss rather than poisoning the run.
func (s *Store) Lookup(ctx context.Context, vendor, osType, role string) (pipeline.CriteriaSet, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fp := Fingerprint(vendor, osType, role)
	var checksJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT checks FROM criteria_cache WHERE fingerprint_hash = ?`, fp).Scan(&checksJSON)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: lookup: %w", err)
	}

	var checks pipeline.CriteriaSet
	if err := json.Unmarshal([]byte(checksJSON), &checks); err != nil {
		return nil, false, nil
	}
	if checks.Validate() != nil {
		return nil, false, nil
	}
	return checks, true, nil
}

// Put stores the criteria set for the asset class, overwriting any
// existing entry for the same fingerprint.
func (s *Store) Put(ctx context.Context, vendor, osType, role string, checks pipeline.CriteriaSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	checksJSON, err := json.Marshal(checks)
	if err != nil {
		return fmt.Errorf("cache: encode checks: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO criteria_cache (fingerprint_hash, vendor, os_type, role, checks, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint_hash) DO UPDATE SET
		   vendor = excluded.vendor,
		   os_type = excluded.os_type,
		   role = excluded.role,
		   checks = excluded.checks,
		   created_at = excluded.created_at`,
		Fingerprint(vendor, osType, role), vendor, osType, role,
		string(checksJSON), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("cache: put: %w", err)
	}
	return nil
}

// Stats reports entry count and age range.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	var oldest, newest sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(created_at), MAX(created_at) FROM criteria_cache`).
		Scan(&st.Entries, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("cache: stats: %w", err)
	}
	if oldest.Valid {
		st.Oldest, _ = time.Parse(time.RFC3339, oldest.String)
	}
	if newest.Valid {
		st.Newest, _ = time.Parse(time.RFC3339, newest.String)
	}
	return &st, nil
}

// Clear deletes every entry and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM criteria_cache`)
	if err != nil {
		return 0, fmt.Errorf("cache: clear: %w", err)
	}
	return res.RowsAffected()
}
