package registry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists handler records in a local sqlite database. Rows are
// returned in rowid order, which is insertion order, so the catalog the
// Supervisor sees is stable across restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the handler database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open %s: %w", path, err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS handlers (
		name TEXT PRIMARY KEY,
		instruction TEXT NOT NULL,
		model_key TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'conversational'
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite store: create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// ListHandlers returns all records in insertion (rowid) order. Rows with an
// unknown kind string are returned with the raw name intact but skipped by
// the loader's validation, not here.
func (s *SQLiteStore) ListHandlers(ctx context.Context) ([]HandlerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, instruction, model_key, kind FROM handlers ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list handlers: %w", err)
	}
	defer rows.Close()

	var out []HandlerRecord
	for rows.Next() {
		var name, instruction, modelKey, kindStr string
		if err := rows.Scan(&name, &instruction, &modelKey, &kindStr); err != nil {
			return nil, fmt.Errorf("sqlite store: scan handler row: %w", err)
		}
		kind, err := ParseKind(kindStr)
		if err != nil {
			// Malformed row; surface as conversational and let the loader's
			// name/model filters decide. Unknown kinds are operator typos.
			kind = KindConversational
		}
		out = append(out, HandlerRecord{
			Name:        name,
			Instruction: instruction,
			ModelKey:    modelKey,
			Kind:        kind,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: iterate handler rows: %w", err)
	}
	return out, nil
}

// PutHandler inserts or replaces a record.
func (s *SQLiteStore) PutHandler(ctx context.Context, rec HandlerRecord) error {
	rec.Name = NormalizeName(rec.Name)
	if rec.Name == "" {
		return fmt.Errorf("sqlite store: handler name must not be empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO handlers (name, instruction, model_key, kind)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   instruction = excluded.instruction,
		   model_key   = excluded.model_key,
		   kind        = excluded.kind`,
		rec.Name, rec.Instruction, rec.ModelKey, rec.Kind.String())
	if err != nil {
		return fmt.Errorf("sqlite store: put handler %q: %w", rec.Name, err)
	}
	return nil
}
