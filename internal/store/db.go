// Package store persists analyzed TCX sessions and their per-sample series in
// SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrSessionNotFound is returned when a session id is not stored.
var ErrSessionNotFound = errors.New("session not found")

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is the SQLite-backed session store.
type Store struct {
	db *sql.DB
}

// Open opens the database at path, creating the file, its directory and the
// schema when missing.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps an in-memory database alive across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			sport TEXT NOT NULL,
			start_time TEXT,
			elapsed_seconds REAL NOT NULL,
			distance_meters REAL NOT NULL,
			calories INTEGER NOT NULL,
			elevation_gain_m REAL NOT NULL,
			high_altitude_threshold_m REAL NOT NULL,
			high_altitude_distance_m REAL NOT NULL,
			low_altitude_distance_m REAL NOT NULL,
			high_altitude_samples INTEGER NOT NULL,
			max_grade REAL,
			avg_power_watts REAL,
			normalized_power_watts REAL,
			avg_heart_rate_bpm REAL,
			training_stress_score REAL,
			sample_count INTEGER NOT NULL,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions(start_time)`,

		`CREATE TABLE IF NOT EXISTS samples (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			sample_index INTEGER NOT NULL,
			ts TEXT,
			power REAL,
			speed REAL,
			distance REAL,
			altitude REAL,
			heart_rate REAL,
			cadence REAL,
			grade REAL,
			PRIMARY KEY (session_id, sample_index)
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return nil
}
