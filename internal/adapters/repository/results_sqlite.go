package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

const resultsSchema = `
CREATE TABLE IF NOT EXISTS results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at TEXT NOT NULL,
    email TEXT NOT NULL,
    payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS results_email ON results(email);
`

// ResultSQLite stores results as JSON rows in a SQLite database.
type ResultSQLite struct {
	db *sql.DB
}

var _ ResultStore = (*ResultSQLite)(nil)

// NewResultSQLite opens or creates the database at path. ":memory:" is
// accepted for tests.
func NewResultSQLite(ctx context.Context, path string) (*ResultSQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrWrite, path, err)
	}
	// One connection keeps writers serialized and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, resultsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: schema: %w", ErrWrite, err)
	}
	return &ResultSQLite{db: db}, nil
}

// Save inserts r and returns its row id.
func (s *ResultSQLite) Save(ctx context.Context, r Result) (string, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("%w: encode: %w", ErrWrite, err)
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO results (created_at, email, payload) VALUES (?, ?, ?)",
		r.Timestamp.UTC().Format(time.RFC3339Nano), r.User.Email, string(payload))
	if err != nil {
		return "", fmt.Errorf("%w: insert: %w", ErrWrite, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("%w: last id: %w", ErrWrite, err)
	}
	return strconv.FormatInt(id, 10), nil
}

// Get loads a result by row id.
func (s *ResultSQLite) Get(ctx context.Context, ref string) (Result, error) {
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return Result{}, ErrNotFound
	}

	var payload string
	err = s.db.QueryRowContext(ctx, "SELECT payload FROM results WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, ErrNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: select %d: %w", ErrRead, id, err)
	}

	var r Result
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return Result{}, fmt.Errorf("%w: row %d: %w", ErrCorrupt, id, err)
	}
	return r, nil
}

// Close releases the database.
func (s *ResultSQLite) Close() error {
	return s.db.Close()
}
