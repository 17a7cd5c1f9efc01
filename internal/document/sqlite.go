package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/schaermu/ecm/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	path TEXT PRIMARY KEY,
	frontmatter TEXT NOT NULL,
	updated_at DATETIME NOT NULL
)`

// SQLite keeps document headers in a SQLite database, one row per document.
// Headers are stored as YAML so they round-trip exactly like the markdown
// backend.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenSQLite opens (or creates) the database at path
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ReadFrontmatter returns the stored header of doc
func (s *SQLite) ReadFrontmatter(ctx context.Context, doc string) (map[string]any, error) {
	var front string
	err := s.db.QueryRowContext(ctx, "SELECT frontmatter FROM documents WHERE path = ?", doc).Scan(&front)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &store.PersistenceError{Op: "select", Path: doc, Err: store.ErrNotExist}
	}
	if err != nil {
		return nil, &store.PersistenceError{Op: "select", Path: doc, Err: err}
	}

	fm, err := decode(front)
	if err != nil {
		return nil, &store.PersistenceError{Op: "parse", Path: doc, Err: err}
	}
	return fm, nil
}

// MutateFrontmatter applies fn to the header of doc inside a transaction
func (s *SQLite) MutateFrontmatter(ctx context.Context, doc string, fn func(fm map[string]any) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &store.PersistenceError{Op: "begin", Path: doc, Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var front string
	err = tx.QueryRowContext(ctx, "SELECT frontmatter FROM documents WHERE path = ?", doc).Scan(&front)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return &store.PersistenceError{Op: "select", Path: doc, Err: err}
	}

	fm, err := decode(front)
	if err != nil {
		return &store.PersistenceError{Op: "parse", Path: doc, Err: err}
	}
	if err := fn(fm); err != nil {
		return err
	}

	encoded, err := encode(fm)
	if err != nil {
		return &store.PersistenceError{Op: "encode", Path: doc, Err: err}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (path, frontmatter, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			frontmatter = excluded.frontmatter,
			updated_at = excluded.updated_at`,
		doc, encoded, time.Now().UTC())
	if err != nil {
		return &store.PersistenceError{Op: "upsert", Path: doc, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &store.PersistenceError{Op: "commit", Path: doc, Err: err}
	}
	return nil
}
