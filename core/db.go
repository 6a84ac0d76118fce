package core

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type (
	// DBExecutor is what repositories run their queries against: a *sqlx.DB or a *sqlx.Tx.
	DBExecutor interface {
		sqlx.ExtContext
	}

	// Transactor runs fn in a single unit of work. Repositories called with the ctx handed to fn
	// share the transaction; it is rolled back if fn returns an error.
	Transactor interface {
		WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	}
)

type txKey struct{}

// ContextWithExecutor stores exec in ctx for repositories to pick up.
func ContextWithExecutor(ctx context.Context, exec DBExecutor) context.Context {
	return context.WithValue(ctx, txKey{}, exec)
}

// ExecutorFromContext returns the executor stored in ctx, or def.
func ExecutorFromContext(ctx context.Context, def DBExecutor) DBExecutor {
	if exec, ok := ctx.Value(txKey{}).(DBExecutor); ok {
		return exec
	}
	return def
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
