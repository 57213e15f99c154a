// Package postgres reads FHIR resources from a PostgreSQL table through pgx.
//
// The table holds one row per resource:
//
//	CREATE TABLE fhir_resources (
//	    seq           BIGSERIAL PRIMARY KEY,
//	    resource_type TEXT  NOT NULL,
//	    resource_id   TEXT  NOT NULL,
//	    resource      JSONB NOT NULL,
//	    UNIQUE (resource_type, resource_id)
//	);
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	cr "github.com/gofhir/cqlretrieve"
)

const schema = `
CREATE TABLE IF NOT EXISTS fhir_resources (
    seq           BIGSERIAL PRIMARY KEY,
    resource_type TEXT  NOT NULL,
    resource_id   TEXT  NOT NULL,
    resource      JSONB NOT NULL,
    UNIQUE (resource_type, resource_id)
)`

// Querier is the subset of pgxpool.Pool used by Store.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Store reads resources from the fhir_resources table.
type Store struct {
	db   Querier
	pool *pgxpool.Pool
}

// New creates a store over an existing connection or pool.
func New(db Querier) *Store {
	return &Store{db: db}
}

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string, maxConns, minConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: pool, pool: pool}, nil
}

// Migrate creates the resource table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create fhir_resources: %w", err)
	}
	return nil
}

// Put inserts or replaces a resource.
func (s *Store) Put(ctx context.Context, r *cr.Resource) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO fhir_resources (resource_type, resource_id, resource)
		VALUES ($1, $2, $3)
		ON CONFLICT (resource_type, resource_id) DO UPDATE SET resource = EXCLUDED.resource`,
		r.Type(), r.ID(), []byte(r.Raw()))
	if err != nil {
		return fmt.Errorf("put %s: %w", r.Reference(), err)
	}
	return nil
}

// AllOfType returns the resources of dataType in insertion order.
func (s *Store) AllOfType(ctx context.Context, dataType string) ([]*cr.Resource, error) {
	rows, err := s.db.Query(ctx, `
		SELECT resource FROM fhir_resources
		WHERE resource_type = $1
		ORDER BY seq`, dataType)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", dataType, err)
	}
	defer rows.Close()

	var resources []*cr.Resource
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", dataType, err)
		}
		r, err := cr.NewResource(raw)
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

// Close releases the pool opened by Open.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Verify interface compliance
var _ cr.ResourceStore = (*Store)(nil)
