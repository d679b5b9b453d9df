// Copyright 2026 The gmailer-bot Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite wraps a local database holding state files and run history.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (and if needed creates) the database at dbPath.
func OpenSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		// Enable WAL mode for better concurrent access
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if _, err := db.Exec("PRAGMA busy_timeout=30000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &SQLite{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// migrate creates the database schema
func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS state_files (
		path TEXT PRIMARY KEY,
		contents BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		job TEXT NOT NULL,
		outcome TEXT NOT NULL,
		report TEXT NOT NULL,
		ran_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_run_history_ran_at ON run_history(ran_at);
	CREATE INDEX IF NOT EXISTS idx_run_history_job ON run_history(job);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Name() string { return "SQLite" }

// ReadFile implements FileClient.
func (s *SQLite) ReadFile(ctx context.Context, path string) ([]byte, error) {
	var contents []byte
	err := s.db.QueryRowContext(ctx, "SELECT contents FROM state_files WHERE path = ?", path).Scan(&contents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}
	return contents, nil
}

// WriteFile implements FileClient.
func (s *SQLite) WriteFile(ctx context.Context, path string, data []byte) error {
	query := `
		INSERT INTO state_files (path, contents, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			contents = excluded.contents,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, path, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", path, err)
	}
	return nil
}

// RunRecord is one line of run history.
type RunRecord struct {
	ID      int64     `json:"id"`
	RunID   string    `json:"run_id"`
	Job     string    `json:"job"`
	Outcome string    `json:"outcome"`
	Report  string    `json:"report"`
	RanAt   time.Time `json:"ran_at"`
}

// Record appends a run to the history.
func (s *SQLite) Record(ctx context.Context, r *RunRecord) error {
	query := `
		INSERT INTO run_history (run_id, job, outcome, report, ran_at)
		VALUES (?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query, r.RunID, r.Job, r.Outcome, r.Report, r.RanAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get run id: %w", err)
	}
	r.ID = id
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, run_id, job, outcome, report, ran_at
		FROM run_history
		ORDER BY ran_at DESC, id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.RunID, &r.Job, &r.Outcome, &r.Report, &r.RanAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run history: %w", err)
	}
	return records, nil
}
