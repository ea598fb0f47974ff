package dialect

import (
	"fmt"
	"strings"
)

// Delta targets Delta Lake through a Spark SQL endpoint.
type Delta struct{}

func (Delta) Name() string { return "delta" }

func (Delta) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d Delta) QuoteRelation(relation string) string {
	return quoteRelation(relation, d.QuoteIdent)
}

func (d Delta) ColumnsQuery(relation string) string {
	return fmt.Sprintf("SHOW COLUMNS IN %s", d.QuoteRelation(relation))
}

func (Delta) SupportsMergeStar() bool  { return true }
func (Delta) SupportsTimeTravel() bool { return true }

func (d Delta) CurrentVersionQuery(relation string) string {
	return fmt.Sprintf("SELECT MAX(version) FROM (DESCRIBE HISTORY %s)", d.QuoteRelation(relation))
}

func (d Delta) VersionDiffQuery(relation string, pre, post int64, limit int) string {
	rel := d.QuoteRelation(relation)
	return fmt.Sprintf(
		"SELECT * FROM (SELECT * FROM %s VERSION AS OF %d EXCEPT SELECT * FROM %s VERSION AS OF %d) changes LIMIT %d",
		rel, post, rel, pre, limit)
}

var _ Dialect = Delta{}
