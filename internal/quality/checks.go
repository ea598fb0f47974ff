package quality

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dpstorage/deltactl/internal/config"
	"github.com/dpstorage/deltactl/internal/model"
)

// columns fetches the relation's column names from the engine.
func (c *Checker) columns(ctx context.Context, relation string) ([]string, error) {
	cols, err := c.sess.QueryStrings(ctx, c.d.ColumnsQuery(relation))
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", relation, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("relation %s has no columns", relation)
	}
	return cols, nil
}

// dedupeLatest keeps the latest record per key, ranked by input_file_name
// (when the relation has one) and the configured order columns, newest first.
// The surviving rows are exposed as the recent_data_view temporary view.
func (c *Checker) dedupeLatest(ctx context.Context, relation string, p Params) (string, error) {
	cols, err := c.columns(ctx, relation)
	if err != nil {
		return "", err
	}

	hasFile := false
	for _, col := range cols {
		if col == fileColumn {
			hasFile = true
			break
		}
	}

	var orderCols []string
	if hasFile {
		orderCols = append(orderCols, fileColumn)
	}
	for _, col := range p.OrderBy {
		if col == fileColumn && hasFile {
			continue
		}
		orderCols = append(orderCols, col)
	}
	if len(orderCols) == 0 {
		return "", fmt.Errorf("order_by is required when the relation has no %s column", fileColumn)
	}

	selectList := make([]string, len(cols))
	for i, col := range cols {
		selectList[i] = c.d.QuoteIdent(col)
	}
	partition := make([]string, len(p.KeyColumns))
	for i, col := range p.KeyColumns {
		partition[i] = c.d.QuoteIdent(strings.TrimSpace(col))
	}
	order := make([]string, len(orderCols))
	for i, col := range orderCols {
		order[i] = c.d.QuoteIdent(col) + " DESC"
	}

	query := fmt.Sprintf(
		"CREATE OR REPLACE TEMPORARY VIEW %s AS\n"+
			"SELECT %s\n"+
			"FROM (\n"+
			"    SELECT t.*, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS rnr\n"+
			"    FROM %s t\n"+
			") x\n"+
			"WHERE rnr = 1",
		c.d.QuoteIdent(dedupView),
		strings.Join(selectList, ", "),
		strings.Join(partition, ", "),
		strings.Join(order, ", "),
		c.d.QuoteRelation(relation))

	c.log.Debug().Str("query", query).Msg("deduplicating latest per key")
	if _, err := c.sess.Exec(ctx, query); err != nil {
		return "", err
	}

	c.log.Info().
		Strs("keys", p.KeyColumns).
		Strs("order_by", orderCols).
		Str("view", dedupView).
		Msg("deduplication complete")
	return dedupView, nil
}

// checkDuplicates counts key groups that still occur more than once.
func (c *Checker) checkDuplicates(ctx context.Context, relation string, keyColumns []string, report *model.CheckReport) error {
	keys := make([]string, len(keyColumns))
	for i, col := range keyColumns {
		keys[i] = c.d.QuoteIdent(strings.TrimSpace(col))
	}
	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM (SELECT 1 AS one FROM %s GROUP BY %s HAVING COUNT(*) > 1) dups",
		c.d.QuoteRelation(relation), strings.Join(keys, ", "))

	return c.countViolations(ctx, "duplicate check", strings.Join(keyColumns, ", "), query, report)
}

// checkNulls counts NULLs per critical column.
func (c *Checker) checkNulls(ctx context.Context, relation string, criticalColumns []string, report *model.CheckReport) error {
	for _, col := range criticalColumns {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL",
			c.d.QuoteRelation(relation), c.d.QuoteIdent(col))
		if err := c.countViolations(ctx, "null values check", col, query, report); err != nil {
			return err
		}
	}
	return nil
}

// checkRanges counts values outside the inclusive [min, max] per column.
func (c *Checker) checkRanges(ctx context.Context, relation string, ranges map[string]config.Range, report *model.CheckReport) error {
	cols := make([]string, 0, len(ranges))
	for col := range ranges {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	for _, col := range cols {
		r := ranges[col]
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s < %s OR %s > %s",
			c.d.QuoteRelation(relation),
			c.d.QuoteIdent(col), formatFloat(r.Min),
			c.d.QuoteIdent(col), formatFloat(r.Max))
		subject := fmt.Sprintf("%s [%s, %s]", col, formatFloat(r.Min), formatFloat(r.Max))
		if err := c.countViolations(ctx, "value range check", subject, query, report); err != nil {
			return err
		}
	}
	return nil
}

// checkReferentialIntegrity counts rows without a match in the reference
// relation (anti-join).
func (c *Checker) checkReferentialIntegrity(ctx context.Context, relation, referenceRel, joinColumn string, report *model.CheckReport) error {
	jc := c.d.QuoteIdent(joinColumn)
	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM %s s WHERE NOT EXISTS (SELECT 1 FROM %s r WHERE r.%s = s.%s)",
		c.d.QuoteRelation(relation), c.d.QuoteRelation(referenceRel), jc, jc)

	subject := fmt.Sprintf("%s -> %s.%s", joinColumn, referenceRel, joinColumn)
	return c.countViolations(ctx, "referential integrity check", subject, query, report)
}

// checkConsistency counts rows where the first column exceeds the second,
// e.g. a start date after its end date.
func (c *Checker) checkConsistency(ctx context.Context, relation string, pairs []config.Pair, report *model.CheckReport) error {
	for _, p := range pairs {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s > %s",
			c.d.QuoteRelation(relation), c.d.QuoteIdent(p.First), c.d.QuoteIdent(p.Second))
		subject := fmt.Sprintf("%s <= %s", p.First, p.Second)
		if err := c.countViolations(ctx, "field consistency check", subject, query, report); err != nil {
			return err
		}
	}
	return nil
}

// createCleanedView materializes the cleaned data, dropping excluded columns.
// Exclusions not present on the relation are ignored.
func (c *Checker) createCleanedView(ctx context.Context, relation string, exclude []string) error {
	cols, err := c.columns(ctx, relation)
	if err != nil {
		return err
	}

	excluded := make(map[string]bool, len(exclude))
	for _, col := range exclude {
		excluded[col] = true
	}

	var selectList []string
	for _, col := range cols {
		if excluded[col] {
			continue
		}
		selectList = append(selectList, c.d.QuoteIdent(col))
	}
	if len(selectList) == 0 {
		return fmt.Errorf("excluding %v would leave no columns", exclude)
	}

	query := fmt.Sprintf("CREATE OR REPLACE TEMPORARY VIEW %s AS SELECT %s FROM %s",
		c.d.QuoteIdent(CleanedView), strings.Join(selectList, ", "), c.d.QuoteRelation(relation))

	c.log.Debug().Str("query", query).Msg("creating cleaned view")
	if _, err := c.sess.Exec(ctx, query); err != nil {
		return err
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
