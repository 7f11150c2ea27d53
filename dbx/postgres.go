// Package dbx owns the Postgres connection pool and migration bootstrap
// shared by every store in the gateway. Stores take a *pgxpool.Pool (or
// a pgx.Tx when participating in the ledger's transaction) and write
// explicit SQL — no ORM, matching the store shape in wisbric-nightowl's
// pkg/apikey/store.go.
package dbx

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Open creates and verifies a Postgres connection pool.
func Open(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting store
// methods run unchanged whether called standalone or inside the
// ledger's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
