package merge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dpstorage/deltactl/internal/dialect"
	"github.com/dpstorage/deltactl/internal/engine"
	"github.com/dpstorage/deltactl/internal/model"
)

// fakeSession records every statement and answers from configurable handlers.
type fakeSession struct {
	execs     []string
	queries   []string
	onExec    func(q string) (int64, error)
	onInt64   func(q string) (int64, error)
	onStrings func(q string) ([]string, error)
	onTable   func(q string, limit int) (*engine.Table, error)
}

func (f *fakeSession) Exec(_ context.Context, q string) (int64, error) {
	f.execs = append(f.execs, q)
	if f.onExec != nil {
		return f.onExec(q)
	}
	return 0, nil
}

func (f *fakeSession) QueryInt64(_ context.Context, q string) (int64, error) {
	f.queries = append(f.queries, q)
	if f.onInt64 != nil {
		return f.onInt64(q)
	}
	return 0, nil
}

func (f *fakeSession) QueryStrings(_ context.Context, q string) ([]string, error) {
	f.queries = append(f.queries, q)
	if f.onStrings != nil {
		return f.onStrings(q)
	}
	return nil, nil
}

func (f *fakeSession) QueryTable(_ context.Context, q string, limit int) (*engine.Table, error) {
	f.queries = append(f.queries, q)
	if f.onTable != nil {
		return f.onTable(q, limit)
	}
	return &engine.Table{}, nil
}

func (f *fakeSession) Close() {}

var _ engine.Session = (*fakeSession)(nil)

func testRequest() Request {
	return Request{
		Destination: model.Destination{Database: "prod", Table: "energy_readings"},
		SourceView:  "cleaned_data_view",
		KeyColumns:  []string{"meter_id", "reading_day"},
	}
}

func TestManagerRun_Delta(t *testing.T) {
	sess := &fakeSession{
		onInt64: func(q string) (int64, error) {
			if !strings.Contains(q, "DESCRIBE HISTORY") {
				t.Errorf("unexpected scalar query: %q", q)
			}
			return 4, nil
		},
		onExec: func(q string) (int64, error) { return 3, nil },
		onTable: func(q string, limit int) (*engine.Table, error) {
			for _, want := range []string{"VERSION AS OF 5", "VERSION AS OF 4", "LIMIT 10"} {
				if !strings.Contains(q, want) {
					t.Errorf("diff query missing %q: %q", want, q)
				}
			}
			return &engine.Table{Columns: []string{"meter_id"}, Rows: [][]any{{"m1"}}}, nil
		},
	}

	mgr := NewManager(sess, dialect.Delta{}, zerolog.Nop())
	summary, preview, err := mgr.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.PreMergeVersion != 4 || summary.PostMergeVersion != 5 {
		t.Errorf("versions: pre=%d post=%d", summary.PreMergeVersion, summary.PostMergeVersion)
	}
	if summary.RowsAffected != 3 {
		t.Errorf("rows affected: %d", summary.RowsAffected)
	}
	if summary.ChangedPreviewed != 1 || len(preview.Rows) != 1 {
		t.Errorf("preview: %+v", preview)
	}

	if len(sess.execs) != 1 {
		t.Fatalf("expected exactly one exec, got %d: %v", len(sess.execs), sess.execs)
	}
	if !strings.Contains(sess.execs[0], "WHEN MATCHED THEN UPDATE SET *") {
		t.Errorf("merge statement not star-form: %q", sess.execs[0])
	}
}

func TestManagerRun_PostgresSnapshot(t *testing.T) {
	sess := &fakeSession{
		onStrings: func(q string) ([]string, error) {
			return []string{"meter_id", "reading_day", "kwh"}, nil
		},
		onExec: func(q string) (int64, error) { return 2, nil },
	}

	mgr := NewManager(sess, dialect.Postgres{}, zerolog.Nop())
	summary, _, err := mgr.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.PreMergeVersion != -1 || summary.PostMergeVersion != -1 {
		t.Errorf("expected unknown versions, got pre=%d post=%d",
			summary.PreMergeVersion, summary.PostMergeVersion)
	}

	if len(sess.execs) != 2 {
		t.Fatalf("expected snapshot + merge execs, got %v", sess.execs)
	}
	if !strings.Contains(sess.execs[0], "CREATE TEMPORARY TABLE") ||
		!strings.Contains(sess.execs[0], `SELECT * FROM "prod"."energy_readings"`) {
		t.Errorf("first exec is not a snapshot: %q", sess.execs[0])
	}
	if !strings.Contains(sess.execs[1], `WHEN MATCHED THEN UPDATE SET "kwh" = s."kwh"`) {
		t.Errorf("merge statement not explicit-form: %q", sess.execs[1])
	}

	diff := sess.queries[len(sess.queries)-1]
	if !strings.Contains(diff, "EXCEPT") || !strings.Contains(diff, "premerge_") {
		t.Errorf("diff query not snapshot-based: %q", diff)
	}
}

func TestManagerRun_VersionPhaseFailure(t *testing.T) {
	sess := &fakeSession{
		onInt64: func(q string) (int64, error) { return 0, fmt.Errorf("table not found") },
	}

	mgr := NewManager(sess, dialect.Delta{}, zerolog.Nop())
	_, _, err := mgr.Run(context.Background(), testRequest())

	var pe *PipelineError
	if !errors.As(err, &pe) || pe.Phase != "version" {
		t.Fatalf("expected version-phase error, got %v", err)
	}
	if len(sess.execs) != 0 {
		t.Errorf("no statement must execute after version failure: %v", sess.execs)
	}
}

func TestManagerRun_PreviewFailureKeepsSummary(t *testing.T) {
	sess := &fakeSession{
		onInt64: func(q string) (int64, error) { return 7, nil },
		onExec:  func(q string) (int64, error) { return 1, nil },
		onTable: func(q string, limit int) (*engine.Table, error) {
			return nil, fmt.Errorf("concurrent vacuum")
		},
	}

	mgr := NewManager(sess, dialect.Delta{}, zerolog.Nop())
	summary, preview, err := mgr.Run(context.Background(), testRequest())

	var pe *PipelineError
	if !errors.As(err, &pe) || pe.Phase != "preview" {
		t.Fatalf("expected preview-phase error, got %v", err)
	}
	if preview != nil {
		t.Error("expected nil preview on failure")
	}
	if summary == nil || summary.RowsAffected != 1 || summary.PostMergeVersion != 8 {
		t.Errorf("summary must survive a preview failure: %+v", summary)
	}
}

func TestManagerRun_NoKeys(t *testing.T) {
	mgr := NewManager(&fakeSession{}, dialect.Delta{}, zerolog.Nop())
	req := testRequest()
	req.KeyColumns = nil
	if _, _, err := mgr.Run(context.Background(), req); err == nil {
		t.Fatal("expected error for empty key columns")
	}
}
