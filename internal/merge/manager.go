// Package merge sequences a MERGE run against the engine: capture the
// pre-merge table state, build and execute the MERGE, infer the post-merge
// version, and fetch a preview of the rows the merge changed.
package merge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dpstorage/deltactl/internal/dialect"
	"github.com/dpstorage/deltactl/internal/engine"
	"github.com/dpstorage/deltactl/internal/model"
)

// versionUnknown marks version fields on engines without table history.
const versionUnknown = -1

// PipelineError wraps an error with the phase where it occurred.
type PipelineError struct {
	Phase string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Request describes one merge run.
type Request struct {
	Destination  model.Destination
	SourceView   string
	KeyColumns   []string
	PreviewLimit int // changed-row preview size; defaults to 10
}

// Manager drives the merge pipeline over a single engine session.
type Manager struct {
	sess engine.Session
	d    dialect.Dialect
	log  zerolog.Logger
}

func NewManager(sess engine.Session, d dialect.Dialect, log zerolog.Logger) *Manager {
	return &Manager{sess: sess, d: d, log: log}
}

// Run executes the pipeline: version capture → merge → post version → diff
// preview. The returned table holds the previewed changed rows; it is nil
// only when the preview phase itself failed, in which case the error carries
// phase "preview" and the merge has already committed.
func (m *Manager) Run(ctx context.Context, req Request) (*model.MergeSummary, *engine.Table, error) {
	totalStart := time.Now()
	target := req.Destination.Qualified()
	limit := req.PreviewLimit
	if limit <= 0 {
		limit = 10
	}
	if len(req.KeyColumns) == 0 {
		return nil, nil, &PipelineError{Phase: "version", Err: fmt.Errorf("at least one key column is required")}
	}

	m.log.Info().
		Str("path", req.Destination.Path).
		Str("database", req.Destination.Database).
		Str("table", req.Destination.Table).
		Str("view", req.SourceView).
		Strs("keys", req.KeyColumns).
		Msg("starting merge")

	// Phase 1: capture pre-merge state.
	preVersion := int64(versionUnknown)
	snapshot := ""
	if m.d.SupportsTimeTravel() {
		q := m.d.CurrentVersionQuery(target)
		m.log.Debug().Str("query", q).Msg("reading pre-merge version")
		v, err := m.sess.QueryInt64(ctx, q)
		if err != nil {
			return nil, nil, &PipelineError{Phase: "version", Err: err}
		}
		preVersion = v
		m.log.Info().Int64("version", preVersion).Msg("pre-merge version")
	} else {
		snapshot = "premerge_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
		ddl := snapshotDDL(m.d, snapshot, target)
		m.log.Debug().Str("query", ddl).Msg("snapshotting target")
		if _, err := m.sess.Exec(ctx, ddl); err != nil {
			return nil, nil, &PipelineError{Phase: "version", Err: err}
		}
		m.log.Info().Str("snapshot", snapshot).Msg("engine keeps no history, snapshotted target")
	}

	// Phase 2: build the MERGE statement.
	var columns []string
	if !m.d.SupportsMergeStar() {
		cols, err := m.sess.QueryStrings(ctx, m.d.ColumnsQuery(target))
		if err != nil {
			return nil, nil, &PipelineError{Phase: "build", Err: fmt.Errorf("list target columns: %w", err)}
		}
		columns = cols
	}
	mergeSQL, err := BuildMergeSQL(m.d, target, req.SourceView, req.KeyColumns, columns)
	if err != nil {
		return nil, nil, &PipelineError{Phase: "build", Err: err}
	}
	m.log.Debug().Str("query", mergeSQL).Msg("merge statement")

	// Phase 3: execute.
	mergeStart := time.Now()
	rowsAffected, err := m.sess.Exec(ctx, mergeSQL)
	if err != nil {
		return nil, nil, &PipelineError{Phase: "merge", Err: err}
	}
	mergeDur := time.Since(mergeStart)
	m.log.Info().
		Int64("rows_affected", rowsAffected).
		Dur("duration", mergeDur).
		Msg("merge complete")

	// Phase 4: post-merge version. Delta bumps the version by exactly one
	// per committed MERGE.
	postVersion := int64(versionUnknown)
	if m.d.SupportsTimeTravel() {
		postVersion = preVersion + 1
	}

	summary := &model.MergeSummary{
		Destination:      req.Destination,
		SourceView:       req.SourceView,
		KeyColumns:       req.KeyColumns,
		PreMergeVersion:  preVersion,
		PostMergeVersion: postVersion,
		RowsAffected:     rowsAffected,
		DurationMerge:    mergeDur,
	}

	// Phase 5: preview the changed rows. The merge is already committed, so
	// a preview failure is reported but does not undo anything.
	var diffSQL string
	if m.d.SupportsTimeTravel() {
		diffSQL = m.d.VersionDiffQuery(target, preVersion, postVersion, limit)
	} else {
		diffSQL = snapshotDiffQuery(m.d, target, snapshot, limit)
	}
	m.log.Debug().Str("query", diffSQL).Msg("changed-rows preview")
	preview, err := m.sess.QueryTable(ctx, diffSQL, limit)
	if err != nil {
		summary.DurationTotal = time.Since(totalStart)
		return summary, nil, &PipelineError{Phase: "preview", Err: err}
	}
	summary.ChangedPreviewed = len(preview.Rows)
	summary.DurationTotal = time.Since(totalStart)

	m.log.Info().
		Int64("pre_version", preVersion).
		Int64("post_version", postVersion).
		Int("previewed", summary.ChangedPreviewed).
		Dur("total", summary.DurationTotal).
		Msg("merge pipeline complete")

	return summary, preview, nil
}
