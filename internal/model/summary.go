package model

import "time"

// Destination identifies where a dataset lands for a given environment.
type Destination struct {
	Path     string
	Database string
	Table    string
}

// Qualified returns the database-qualified table name, unquoted.
func (d Destination) Qualified() string {
	return d.Database + "." + d.Table
}

// MergeSummary captures metrics from a single merge run.
type MergeSummary struct {
	Destination      Destination
	SourceView       string
	KeyColumns       []string
	PreMergeVersion  int64
	PostMergeVersion int64
	RowsAffected     int64
	ChangedPreviewed int
	DurationMerge    time.Duration
	DurationTotal    time.Duration
}

// CheckResult records the outcome of one quality check pass.
type CheckResult struct {
	Check      string
	Subject    string // column, column pair, or relation the pass inspected
	Violations int64
	Passed     bool
}

// CheckReport aggregates the results of a quality check run.
type CheckReport struct {
	Relation      string
	CleanedView   string
	Results       []CheckResult
	DurationTotal time.Duration
}

// StageSummary captures metrics from staging Parquet files.
type StageSummary struct {
	Relation   string
	BatchID    string
	Files      int
	RowsRead   int64
	RowsStaged int64
	Duration   time.Duration
}
