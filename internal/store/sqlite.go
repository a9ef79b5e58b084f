package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/hal9000y/gmail-scraper/internal/scrape"
)

const busyTimeout = 5 * time.Second

// ErrNotFound is returned by Load when no results were stored for a key.
var ErrNotFound = errors.New("results not found")

const schema = `
CREATE TABLE IF NOT EXISTS email_results (
	email_id          TEXT NOT NULL,
	subject_substring TEXT NOT NULL,
	document          TEXT NOT NULL,
	result_count      INTEGER NOT NULL DEFAULT 0,
	updated_at        DATETIME NOT NULL,
	PRIMARY KEY (email_id, subject_substring)
);
`

// SQLiteSink stores one row per key; saving a key replaces its row.
type SQLiteSink struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteSink opens (or creates) the database at dbPath and applies the schema.
// Concurrent callers share one connection; other processes writing the same
// file are waited on for up to busyTimeout.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlx.Open failed: %w", err)
	}

	// One connection: writers queue in the pool and the pragmas below apply to every statement.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting busy timeout failed: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode failed: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema failed: %w", err)
	}

	return &SQLiteSink{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// Save upserts the results document for key.
func (s *SQLiteSink) Save(ctx context.Context, key scrape.Key, results scrape.ResultSet) error {
	if results == nil {
		results = scrape.ResultSet{}
	}

	doc, err := json.MarshalIndent(results, "", "    ")
	if err != nil {
		return fmt.Errorf("json.MarshalIndent failed: %w", err)
	}

	const query = `
		INSERT INTO email_results (email_id, subject_substring, document, result_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (email_id, subject_substring) DO UPDATE SET
			document = excluded.document,
			result_count = excluded.result_count,
			updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		key.Recipient, key.SubjectSubstring, string(doc), len(results), s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting results failed: %w", err)
	}

	return nil
}

// Load returns the stored results for key or ErrNotFound. Used for
// inspection; scrapes only write.
func (s *SQLiteSink) Load(ctx context.Context, key scrape.Key) (scrape.ResultSet, error) {
	var doc string
	err := s.db.GetContext(ctx, &doc,
		"SELECT document FROM email_results WHERE email_id = ? AND subject_substring = ?",
		key.Recipient, key.SubjectSubstring,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("selecting results failed: %w", err)
	}

	var results scrape.ResultSet
	if err := json.Unmarshal([]byte(doc), &results); err != nil {
		return nil, fmt.Errorf("json.Unmarshal failed: %w", err)
	}

	return results, nil
}

// Count returns the number of stored keys. Inspection only.
func (s *SQLiteSink) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM email_results"); err != nil {
		return 0, fmt.Errorf("counting results failed: %w", err)
	}
	return n, nil
}
