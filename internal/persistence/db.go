// Package persistence is the shared persistence interface of spec.md §3
// and §6: the abstract store the gateway uses for session snapshots and
// the bounded per-session input queue, and the world router uses for
// authoritative session state. The core specifies the interface, not the
// schema; this package supplies one concrete Postgres schema, plus the
// account/character stores spec.md's SUPPLEMENTED FEATURES call for.
package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgx connection pool, matching the teacher's internal/db.DB.
type DB struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and returns a DB handle.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (d *DB) Close() {
	d.pool.Close()
}

// Pool returns the underlying pgx pool, for building repositories and for
// goose migrations.
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}
