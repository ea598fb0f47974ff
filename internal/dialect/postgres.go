package dialect

import (
	"fmt"
	"strings"
)

// Postgres targets PostgreSQL 15 or newer (MERGE support).
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (p Postgres) QuoteRelation(relation string) string {
	return quoteRelation(relation, p.QuoteIdent)
}

// ColumnsQuery resolves the relation through regclass so temporary views on
// the session search path are found as well as qualified tables.
func (p Postgres) ColumnsQuery(relation string) string {
	lit := strings.ReplaceAll(p.QuoteRelation(relation), "'", "''")
	return fmt.Sprintf(
		"SELECT a.attname FROM pg_catalog.pg_attribute a "+
			"WHERE a.attrelid = '%s'::regclass AND a.attnum > 0 AND NOT a.attisdropped "+
			"ORDER BY a.attnum", lit)
}

func (Postgres) SupportsMergeStar() bool  { return false }
func (Postgres) SupportsTimeTravel() bool { return false }

func (Postgres) CurrentVersionQuery(string) string { return "" }

func (Postgres) VersionDiffQuery(string, int64, int64, int) string { return "" }

var _ Dialect = Postgres{}
