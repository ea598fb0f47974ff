// Package dialect isolates the SQL text differences between the supported
// engines: identifier quoting, column listing, MERGE column expansion, and
// time travel. Everything else deltactl emits is common SQL.
package dialect

import "strings"

// Dialect generates the engine-specific fragments of deltactl's SQL.
type Dialect interface {
	Name() string

	// QuoteIdent quotes a single identifier.
	QuoteIdent(name string) string
	// QuoteRelation quotes a possibly qualified relation name part by part.
	QuoteRelation(relation string) string

	// ColumnsQuery returns SQL whose first result column lists the
	// relation's column names in table order.
	ColumnsQuery(relation string) string

	// SupportsMergeStar reports whether MERGE can use UPDATE SET * / INSERT *.
	SupportsMergeStar() bool

	// SupportsTimeTravel reports whether the engine keeps table history.
	// The two version queries below are only valid when it does.
	SupportsTimeTravel() bool
	CurrentVersionQuery(relation string) string
	VersionDiffQuery(relation string, pre, post int64, limit int) string
}

// ForEngine returns the dialect matching an engine.Open engine name.
func ForEngine(engine string) Dialect {
	if engine == "delta" {
		return Delta{}
	}
	return Postgres{}
}

func quoteRelation(relation string, quote func(string) string) string {
	parts := strings.Split(relation, ".")
	for i, p := range parts {
		parts[i] = quote(p)
	}
	return strings.Join(parts, ".")
}
