package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the query surface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept it so they work against the pool or a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type contextKey string

const querierKey contextKey = "dbQuerier"

// WithQuerier stores a transaction-scoped querier in the context.
func WithQuerier(ctx context.Context, q Querier) context.Context {
	return context.WithValue(ctx, querierKey, q)
}

// QuerierFromContext retrieves the transaction-scoped querier from context.
// Returns nil and false if not present.
func QuerierFromContext(ctx context.Context) (Querier, bool) {
	q, ok := ctx.Value(querierKey).(Querier)
	return q, ok
}
