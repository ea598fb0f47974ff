// Package quality runs configurable validation passes over a relation and
// materializes the cleaned result as a temporary view. Every pass is a single
// statement shipped to the engine; the checker only sequences them and turns
// violation counts into errors.
package quality

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dpstorage/deltactl/internal/config"
	"github.com/dpstorage/deltactl/internal/dialect"
	"github.com/dpstorage/deltactl/internal/engine"
	"github.com/dpstorage/deltactl/internal/model"
)

// CleanedView is the temporary view holding the cleaned data after a
// successful run, ready to be used as a merge source.
const CleanedView = "cleaned_data_view"

// dedupView is the intermediate view holding the latest record per key.
const dedupView = "recent_data_view"

// fileColumn tags each staged row with its source file; when present it is
// the leading recency sort key for deduplication.
const fileColumn = "input_file_name"

// Params selects which checks run. KeyColumns is required and triggers
// deduplication and the duplicate check; every other field is optional.
type Params struct {
	KeyColumns       []string
	OrderBy          []string
	CriticalColumns  []string
	ColumnRanges     map[string]config.Range
	ReferenceRel     string
	JoinColumn       string
	ConsistencyPairs []config.Pair
	ExcludeColumns   []string
}

// ParamsFromRules converts a rules file into check parameters.
func ParamsFromRules(r config.Rules) Params {
	return Params{
		KeyColumns:       r.KeyColumns,
		OrderBy:          r.OrderBy,
		CriticalColumns:  r.CriticalColumns,
		ColumnRanges:     r.ColumnRanges,
		ReferenceRel:     r.Reference.Relation,
		JoinColumn:       r.Reference.JoinColumn,
		ConsistencyPairs: r.ConsistencyPairs,
		ExcludeColumns:   r.ExcludeColumns,
	}
}

// Checks returns the names of the passes the params will trigger.
func (p Params) Checks() []string {
	var out []string
	if len(p.KeyColumns) > 0 {
		out = append(out, "deduplicate latest per key", "duplicate check")
	}
	if len(p.CriticalColumns) > 0 {
		out = append(out, "null values check")
	}
	if len(p.ColumnRanges) > 0 {
		out = append(out, "value range check")
	}
	if p.ReferenceRel != "" && p.JoinColumn != "" {
		out = append(out, "referential integrity check")
	}
	if len(p.ConsistencyPairs) > 0 {
		out = append(out, "field consistency check")
	}
	if len(p.ExcludeColumns) > 0 {
		out = append(out, "exclude columns")
	}
	return out
}

// CheckError reports a pass whose violation count exceeded zero.
type CheckError struct {
	Check      string
	Subject    string
	Violations int64
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("%s failed: %s has %d violations", e.Check, e.Subject, e.Violations)
}

// Checker sequences quality passes over one engine session.
type Checker struct {
	sess engine.Session
	d    dialect.Dialect
	log  zerolog.Logger
}

func NewChecker(sess engine.Session, d dialect.Dialect, log zerolog.Logger) *Checker {
	return &Checker{sess: sess, d: d, log: log}
}

// Run executes all configured checks over the relation and creates the
// cleaned view. The report covers every pass that ran, including the failed
// one when an error is returned.
func (c *Checker) Run(ctx context.Context, relation string, p Params) (*model.CheckReport, error) {
	start := time.Now()
	report := &model.CheckReport{Relation: relation}

	if len(p.KeyColumns) == 0 {
		return report, fmt.Errorf("key columns are required")
	}

	c.log.Info().
		Str("relation", relation).
		Strs("checks", p.Checks()).
		Msg("starting quality checks")

	current := relation

	// Deduplicate: keep the latest record per key.
	deduped, err := c.dedupeLatest(ctx, current, p)
	if err != nil {
		return report, fmt.Errorf("deduplicate latest per key: %w", err)
	}
	current = deduped
	report.Results = append(report.Results, model.CheckResult{
		Check: "deduplicate latest per key", Subject: relation, Passed: true,
	})

	// Duplicate check on the deduplicated data.
	if err := c.checkDuplicates(ctx, current, p.KeyColumns, report); err != nil {
		return report, err
	}

	if err := c.checkNulls(ctx, current, p.CriticalColumns, report); err != nil {
		return report, err
	}

	if err := c.checkRanges(ctx, current, p.ColumnRanges, report); err != nil {
		return report, err
	}

	if p.ReferenceRel != "" && p.JoinColumn != "" {
		if err := c.checkReferentialIntegrity(ctx, current, p.ReferenceRel, p.JoinColumn, report); err != nil {
			return report, err
		}
	}

	if err := c.checkConsistency(ctx, current, p.ConsistencyPairs, report); err != nil {
		return report, err
	}

	// Materialize the cleaned view, dropping excluded columns.
	if err := c.createCleanedView(ctx, current, p.ExcludeColumns); err != nil {
		return report, fmt.Errorf("create cleaned view: %w", err)
	}
	if len(p.ExcludeColumns) > 0 {
		report.Results = append(report.Results, model.CheckResult{
			Check: "exclude columns", Subject: fmt.Sprint(p.ExcludeColumns), Passed: true,
		})
	}

	report.CleanedView = CleanedView
	report.DurationTotal = time.Since(start)

	c.log.Info().
		Str("view", CleanedView).
		Int("checks", len(report.Results)).
		Dur("duration", report.DurationTotal).
		Msg("all quality checks passed")

	return report, nil
}

// countViolations runs a violation-counting query and records the result,
// returning a CheckError when the count is positive.
func (c *Checker) countViolations(ctx context.Context, check, subject, query string, report *model.CheckReport) error {
	c.log.Debug().Str("check", check).Str("query", query).Msg("running check")

	n, err := c.sess.QueryInt64(ctx, query)
	if err != nil {
		return fmt.Errorf("%s (%s): %w", check, subject, err)
	}

	report.Results = append(report.Results, model.CheckResult{
		Check: check, Subject: subject, Violations: n, Passed: n == 0,
	})

	if n > 0 {
		err := &CheckError{Check: check, Subject: subject, Violations: n}
		c.log.Error().Err(err).Msg("check failed")
		return err
	}
	c.log.Info().Str("check", check).Str("subject", subject).Msg("check passed")
	return nil
}
