package merge

import (
	"fmt"
	"strings"

	"github.com/dpstorage/deltactl/internal/dialect"
)

// BuildMergeSQL constructs the MERGE statement upserting the source view
// into the target relation on the key columns. columns is the target's full
// column list; it may be nil for dialects that support UPDATE SET * / INSERT *.
func BuildMergeSQL(d dialect.Dialect, target, sourceView string, keyColumns, columns []string) (string, error) {
	if len(keyColumns) == 0 {
		return "", fmt.Errorf("at least one key column is required")
	}

	match := make([]string, len(keyColumns))
	for i, col := range keyColumns {
		q := d.QuoteIdent(strings.TrimSpace(col))
		match[i] = fmt.Sprintf("s.%s = t.%s", q, q)
	}

	head := fmt.Sprintf("MERGE INTO %s AS t\nUSING %s AS s\nON %s",
		d.QuoteRelation(target), d.QuoteRelation(sourceView), strings.Join(match, " AND "))

	if d.SupportsMergeStar() {
		return head + "\nWHEN MATCHED THEN UPDATE SET *\nWHEN NOT MATCHED THEN INSERT *", nil
	}

	if len(columns) == 0 {
		return "", fmt.Errorf("dialect %s requires the target column list", d.Name())
	}

	keys := make(map[string]bool, len(keyColumns))
	for _, col := range keyColumns {
		keys[strings.TrimSpace(col)] = true
	}

	var sets, insertCols, insertVals []string
	for _, col := range columns {
		q := d.QuoteIdent(col)
		insertCols = append(insertCols, q)
		insertVals = append(insertVals, "s."+q)
		if !keys[col] {
			sets = append(sets, fmt.Sprintf("%s = s.%s", q, q))
		}
	}

	matched := "WHEN MATCHED THEN DO NOTHING"
	if len(sets) > 0 {
		matched = "WHEN MATCHED THEN UPDATE SET " + strings.Join(sets, ", ")
	}

	return fmt.Sprintf("%s\n%s\nWHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)",
		head, matched, strings.Join(insertCols, ", "), strings.Join(insertVals, ", ")), nil
}

// snapshotDiffQuery diffs the merged target against a pre-merge snapshot for
// engines without table history.
func snapshotDiffQuery(d dialect.Dialect, target, snapshot string, limit int) string {
	return fmt.Sprintf("SELECT * FROM (SELECT * FROM %s EXCEPT SELECT * FROM %s) changes LIMIT %d",
		d.QuoteRelation(target), d.QuoteRelation(snapshot), limit)
}

// snapshotDDL captures the target's current rows into a session-temporary
// snapshot table.
func snapshotDDL(d dialect.Dialect, snapshot, target string) string {
	return fmt.Sprintf("CREATE TEMPORARY TABLE %s AS SELECT * FROM %s",
		d.QuoteRelation(snapshot), d.QuoteRelation(target))
}
