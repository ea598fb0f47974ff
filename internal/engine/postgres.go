package engine

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dpstorage/deltactl/internal/db"
)

// PostgresSession runs statements on a single pinned pgx connection so that
// temporary views and snapshot tables survive across statements.
type PostgresSession struct {
	pool *pgxpool.Pool
	conn *pgxpool.Conn
}

// NewPostgresSession connects and pins one connection for the session.
func NewPostgresSession(ctx context.Context, dsn string) (*PostgresSession, error) {
	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &PostgresSession{pool: pool, conn: conn}, nil
}

func (s *PostgresSession) Exec(ctx context.Context, query string) (int64, error) {
	tag, err := s.conn.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresSession) QueryInt64(ctx context.Context, query string) (int64, error) {
	var v *int64
	if err := s.conn.QueryRow(ctx, query).Scan(&v); err != nil {
		return 0, err
	}
	if v == nil {
		return 0, fmt.Errorf("query returned NULL: %s", query)
	}
	return *v, nil
}

func (s *PostgresSession) QueryStrings(ctx context.Context, query string) ([]string, error) {
	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresSession) QueryTable(ctx context.Context, query string, limit int) (*Table, error) {
	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	t := &Table{}
	for _, fd := range rows.FieldDescriptions() {
		t.Columns = append(t.Columns, fd.Name)
	}
	for rows.Next() {
		if limit > 0 && len(t.Rows) >= limit {
			break
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		t.Rows = append(t.Rows, vals)
	}
	return t, rows.Err()
}

// CopyFrom bulk-loads rows into a table via the COPY protocol.
func (s *PostgresSession) CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	return s.conn.CopyFrom(ctx, table, columns, src)
}

func (s *PostgresSession) Close() {
	s.conn.Release()
	s.pool.Close()
}

var _ Session = (*PostgresSession)(nil)
