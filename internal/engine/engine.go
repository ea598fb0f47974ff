// Package engine binds deltactl to an external SQL engine. All real work —
// joins, window functions, MERGE semantics, versioned reads — happens inside
// the engine; a Session only ships statements to it and reads results back.
package engine

import (
	"context"
	"fmt"
)

// Table is a bounded, displayable query result.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Session is a stateful connection to a SQL engine. Temporary views and
// tables created through a Session stay visible for its lifetime, so all
// statements of one run must go through the same Session.
type Session interface {
	// Exec runs a statement and returns the number of rows affected,
	// when the engine reports it.
	Exec(ctx context.Context, query string) (int64, error)
	// QueryInt64 runs a query expected to yield a single integer scalar.
	QueryInt64(ctx context.Context, query string) (int64, error)
	// QueryStrings runs a query and returns the first column of every row.
	QueryStrings(ctx context.Context, query string) ([]string, error)
	// QueryTable runs a query and buffers at most limit rows for display.
	QueryTable(ctx context.Context, query string, limit int) (*Table, error)
	// Close releases the underlying connection.
	Close()
}

// Open connects to the named engine. Postgres sessions also support bulk
// staging; callers that need it type-assert to *PostgresSession.
func Open(ctx context.Context, engine, dsn string) (Session, error) {
	switch engine {
	case "postgres":
		return NewPostgresSession(ctx, dsn)
	case "delta":
		return NewDeltaSession(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown engine %q", engine)
	}
}
