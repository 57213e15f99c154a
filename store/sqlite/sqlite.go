// Package sqlite stores FHIR resources in a SQLite database using the pure
// Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	cr "github.com/gofhir/cqlretrieve"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS resources (
    seq           INTEGER PRIMARY KEY AUTOINCREMENT,
    resource_type TEXT NOT NULL,
    resource_id   TEXT NOT NULL,
    resource      TEXT NOT NULL,
    UNIQUE (resource_type, resource_id)
)`,
	`CREATE INDEX IF NOT EXISTS resources_type ON resources (resource_type, seq)`,
}

// Store reads and writes resources in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema.
// ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps an in-memory database alive and shared.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Put inserts or replaces a resource.
func (s *Store) Put(ctx context.Context, r *cr.Resource) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resources (resource_type, resource_id, resource)
		VALUES (?, ?, ?)
		ON CONFLICT (resource_type, resource_id) DO UPDATE SET resource = excluded.resource`,
		r.Type(), r.ID(), string(r.Raw()))
	if err != nil {
		return fmt.Errorf("put %s: %w", r.Reference(), err)
	}
	return nil
}

// AllOfType returns the resources of dataType in insertion order.
func (s *Store) AllOfType(ctx context.Context, dataType string) ([]*cr.Resource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT resource FROM resources WHERE resource_type = ? ORDER BY seq`, dataType)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", dataType, err)
	}
	defer rows.Close()

	var resources []*cr.Resource
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", dataType, err)
		}
		r, err := cr.NewResource([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", dataType, err)
		}
		resources = append(resources, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", dataType, err)
	}
	return resources, nil
}

// Count returns the number of stored resources.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resources`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count resources: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Verify interface compliance
var _ cr.ResourceStore = (*Store)(nil)
