// Package duckdb logs training rows and filter decisions to DuckDB so runs
// can be inspected and summarized after the fact.
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"
)

// Run kinds.
const (
	RunTrain  = "train"
	RunFilter = "filter"
)

// Store manages a DuckDB connection for run logs.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database path ("" for in-memory).
func (s *Store) Path() string {
	return s.path
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id VARCHAR PRIMARY KEY,
			kind VARCHAR,
			created_at TIMESTAMP,
			description VARCHAR
		)`,
		`CREATE TABLE IF NOT EXISTS training_rows (
			run_id VARCHAR,
			source VARCHAR,
			label BIGINT,
			qd DOUBLE,
			mq DOUBLE,
			fs DOUBLE,
			mq_rank_sum DOUBLE,
			read_pos_rank_sum DOUBLE,
			sor DOUBLE,
			het DOUBLE,
			ref_depth DOUBLE,
			alt_depth DOUBLE,
			ref_fraction DOUBLE,
			alt_ref_ratio DOUBLE
		)`,
		`CREATE TABLE IF NOT EXISTS filter_results (
			run_id VARCHAR,
			chrom VARCHAR,
			pos BIGINT,
			ref VARCHAR,
			alt VARCHAR,
			class VARCHAR,
			probability DOUBLE,
			prediction BIGINT,
			filter VARCHAR
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Run describes one train or filter invocation.
type Run struct {
	ID          string
	Kind        string
	CreatedAt   time.Time
	Description string
}

// AddRun records a run.
func (s *Store) AddRun(r Run) error {
	_, err := s.db.Exec(`INSERT INTO runs VALUES (?, ?, ?, ?)`,
		r.ID, r.Kind, r.CreatedAt.UTC(), r.Description)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Runs lists recorded runs, oldest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`SELECT run_id, kind, created_at, description FROM runs ORDER BY created_at, run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Kind, &r.CreatedAt, &r.Description); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recent run of the given kind, or "" if none.
func (s *Store) LatestRun(kind string) (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT run_id FROM runs WHERE kind = ? ORDER BY created_at DESC, run_id DESC LIMIT 1`, kind).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query latest run: %w", err)
	}
	return id, nil
}
