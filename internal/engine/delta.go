package engine

import (
	"context"
	"database/sql"
	"fmt"

	// Databricks SQL endpoints speak ODBC through the Simba Spark driver.
	_ "github.com/alexbrainman/odbc"
)

// DeltaSession runs statements against a Delta Lake SQL endpoint over ODBC.
// Like PostgresSession it pins one connection so temporary views created by
// the quality checker remain visible to the merge that follows.
type DeltaSession struct {
	db   *sql.DB
	conn *sql.Conn
}

// NewDeltaSession opens an ODBC connection to the endpoint described by dsn.
func NewDeltaSession(ctx context.Context, dsn string) (*DeltaSession, error) {
	dbh, err := sql.Open("odbc", dsn)
	if err != nil {
		return nil, fmt.Errorf("open odbc: %w", err)
	}
	conn, err := dbh.Conn(ctx)
	if err != nil {
		dbh.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		dbh.Close()
		return nil, fmt.Errorf("ping endpoint: %w", err)
	}
	return &DeltaSession{db: dbh, conn: conn}, nil
}

func (s *DeltaSession) Exec(ctx context.Context, query string) (int64, error) {
	res, err := s.conn.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	// Not every statement reports affected rows through ODBC.
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (s *DeltaSession) QueryInt64(ctx context.Context, query string) (int64, error) {
	var v sql.NullInt64
	if err := s.conn.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return 0, err
	}
	if !v.Valid {
		return 0, fmt.Errorf("query returned NULL: %s", query)
	}
	return v.Int64, nil
}

func (s *DeltaSession) QueryStrings(ctx context.Context, query string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, query)
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

func (s *DeltaSession) QueryTable(ctx context.Context, query string, limit int) (*Table, error) {
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	t := &Table{Columns: cols}

	for rows.Next() {
		if limit > 0 && len(t.Rows) >= limit {
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		t.Rows = append(t.Rows, vals)
	}
	return t, rows.Err()
}

func (s *DeltaSession) Close() {
	s.conn.Close()
	s.db.Close()
}

var _ Session = (*DeltaSession)(nil)
