package merge_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/parquet-go/parquet-go"

	"github.com/dpstorage/deltactl/internal/config"
	"github.com/dpstorage/deltactl/internal/dialect"
	"github.com/dpstorage/deltactl/internal/engine"
	"github.com/dpstorage/deltactl/internal/logging"
	"github.com/dpstorage/deltactl/internal/merge"
	"github.com/dpstorage/deltactl/internal/model"
	"github.com/dpstorage/deltactl/internal/quality"
	"github.com/dpstorage/deltactl/internal/stage"
)

const (
	testPort     = 15433
	testDB       = "deltatest"
	testUser     = "postgres"
	testPassword = "postgres"
)

var (
	testDSN string
	pg      *embeddedpostgres.EmbeddedPostgres
)

func TestMain(m *testing.M) {
	testDSN = fmt.Sprintf("postgresql://%s:%s@localhost:%d/%s?sslmode=disable",
		testUser, testPassword, testPort, testDB)

	pg = embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(uint32(testPort)).
			Database(testDB).
			Username(testUser).
			Password(testPassword).
			Version(embeddedpostgres.V16).
			StartTimeout(30 * time.Second),
	)

	if err := pg.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start embedded postgres: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := pg.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to stop embedded postgres: %v\n", err)
	}

	os.Exit(code)
}

// newSession opens a fresh session and rebuilds the prod schema: the merge
// target plus a reference table for the integrity check.
func newSession(t *testing.T) *engine.PostgresSession {
	t.Helper()
	ctx := context.Background()

	sess, err := engine.NewPostgresSession(ctx, testDSN)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(sess.Close)

	for _, q := range []string{
		"DROP SCHEMA IF EXISTS prod CASCADE",
		"DROP SCHEMA IF EXISTS staging CASCADE",
		"CREATE SCHEMA prod",
		"CREATE TABLE prod.energy_readings (meter_id text, reading_day text, kwh double precision, valid_to text)",
		"CREATE TABLE prod.meters (meter_id text)",
		"INSERT INTO prod.meters VALUES ('m-0001'), ('m-0002')",
	} {
		if _, err := sess.Exec(ctx, q); err != nil {
			t.Fatalf("setup %q: %v", q, err)
		}
	}
	return sess
}

type readingRow struct {
	MeterID    string  `parquet:"meter_id"`
	ReadingDay string  `parquet:"reading_day"`
	KWH        float64 `parquet:"kwh"`
	ValidFrom  string  `parquet:"valid_from"`
	ValidTo    string  `parquet:"valid_to"`
}

func writeFixture(t *testing.T, dir, name string, rows []readingRow) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	w := parquet.NewGenericWriter[readingRow](f)
	if _, err := w.Write(rows); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close fixture: %v", err)
	}
	return path
}

// checkParams covers every pass: dedup and duplicates on the meter-day key,
// null and range checks, referential integrity against prod.meters, validity
// interval consistency, and exclusion of the columns the target lacks.
func checkParams() quality.Params {
	return quality.Params{
		KeyColumns:      []string{"meter_id", "reading_day"},
		CriticalColumns: []string{"meter_id"},
		ColumnRanges:    map[string]config.Range{"kwh": {Min: 0, Max: 100000}},
		ReferenceRel:    "prod.meters",
		JoinColumn:      "meter_id",
		ConsistencyPairs: []config.Pair{
			{First: "valid_from", Second: "valid_to"},
		},
		ExcludeColumns: []string{"input_file_name", "valid_from"},
	}
}

func mergeRequest() merge.Request {
	return merge.Request{
		Destination:  model.Destination{Database: "prod", Table: "energy_readings"},
		SourceView:   quality.CleanedView,
		KeyColumns:   []string{"meter_id", "reading_day"},
		PreviewLimit: 10,
	}
}

func TestEndToEnd_StageCheckMerge(t *testing.T) {
	sess := newSession(t)
	ctx := context.Background()
	log := logging.Setup("text", false)

	dir := t.TempDir()
	// The same meter-day key appears in both files; the later file must win
	// deduplication.
	fileA := writeFixture(t, dir, "a-readings.parquet", []readingRow{
		{MeterID: "m-0001", ReadingDay: "2024-01-01", KWH: 10.5, ValidFrom: "2024-01-01", ValidTo: "2024-12-31"},
		{MeterID: "m-0002", ReadingDay: "2024-01-01", KWH: 20, ValidFrom: "2024-01-01", ValidTo: "2024-12-31"},
	})
	fileB := writeFixture(t, dir, "b-readings.parquet", []readingRow{
		{MeterID: "m-0001", ReadingDay: "2024-01-01", KWH: 11, ValidFrom: "2024-01-01", ValidTo: "2024-12-31"},
		{MeterID: "m-0002", ReadingDay: "2024-01-02", KWH: 5, ValidFrom: "2024-01-02", ValidTo: "2024-12-31"},
	})

	staged, err := stage.LoadParquet(ctx, sess, log, []string{fileA, fileB})
	if err != nil {
		t.Fatalf("LoadParquet: %v", err)
	}
	if staged.RowsRead != 4 || staged.RowsStaged != 4 || staged.Files != 2 {
		t.Errorf("unexpected staging summary: %+v", staged)
	}
	if !strings.HasPrefix(staged.Relation, "staging.load_") {
		t.Errorf("unexpected staging relation: %q", staged.Relation)
	}

	checker := quality.NewChecker(sess, dialect.Postgres{}, log)
	report, err := checker.Run(ctx, staged.Relation, checkParams())
	if err != nil {
		t.Fatalf("quality checks: %v", err)
	}
	if report.CleanedView != quality.CleanedView {
		t.Fatalf("unexpected cleaned view: %q", report.CleanedView)
	}

	t.Run("cleaned_view", func(t *testing.T) {
		n, err := sess.QueryInt64(ctx, "SELECT COUNT(*) FROM cleaned_data_view")
		if err != nil {
			t.Fatalf("count cleaned view: %v", err)
		}
		if n != 3 {
			t.Errorf("cleaned rows: got %d, want 3", n)
		}

		tbl, err := sess.QueryTable(ctx,
			"SELECT * FROM cleaned_data_view WHERE meter_id = 'm-0001' AND reading_day = '2024-01-01'", 10)
		if err != nil {
			t.Fatalf("query cleaned view: %v", err)
		}
		if len(tbl.Rows) != 1 {
			t.Fatalf("expected 1 deduplicated row, got %d", len(tbl.Rows))
		}
		for _, col := range tbl.Columns {
			if col == "valid_from" || col == "input_file_name" {
				t.Errorf("excluded column %q survived", col)
			}
		}
		for i, col := range tbl.Columns {
			if col == "kwh" {
				if got := tbl.Rows[0][i].(float64); got != 11 {
					t.Errorf("latest file must win dedup: kwh = %v, want 11", got)
				}
			}
		}
	})

	mgr := merge.NewManager(sess, dialect.Postgres{}, log)
	summary, preview, err := mgr.Run(ctx, mergeRequest())
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if summary.PreMergeVersion != -1 || summary.PostMergeVersion != -1 {
		t.Errorf("expected unknown versions, got %+v", summary)
	}
	if summary.RowsAffected != 3 {
		t.Errorf("rows affected: got %d, want 3", summary.RowsAffected)
	}
	if len(preview.Rows) != 3 || summary.ChangedPreviewed != 3 {
		t.Errorf("all merged rows are new, preview should show 3: %+v", summary)
	}

	n, err := sess.QueryInt64(ctx, "SELECT COUNT(*) FROM prod.energy_readings")
	if err != nil {
		t.Fatalf("count target: %v", err)
	}
	if n != 3 {
		t.Errorf("target rows: got %d, want 3", n)
	}

	// Second batch updates an existing meter-day; the target row count must
	// hold while the value changes.
	fileC := writeFixture(t, dir, "c-readings.parquet", []readingRow{
		{MeterID: "m-0001", ReadingDay: "2024-01-01", KWH: 12, ValidFrom: "2024-01-01", ValidTo: "2024-12-31"},
	})
	staged2, err := stage.LoadParquet(ctx, sess, log, []string{fileC})
	if err != nil {
		t.Fatalf("LoadParquet second batch: %v", err)
	}
	if _, err := checker.Run(ctx, staged2.Relation, checkParams()); err != nil {
		t.Fatalf("quality checks second batch: %v", err)
	}

	summary2, preview2, err := mgr.Run(ctx, mergeRequest())
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if summary2.RowsAffected != 1 {
		t.Errorf("second merge rows affected: got %d, want 1", summary2.RowsAffected)
	}
	if len(preview2.Rows) != 1 {
		t.Errorf("second merge changed exactly one row, preview shows %d", len(preview2.Rows))
	}

	t.Run("update_path", func(t *testing.T) {
		n, err := sess.QueryInt64(ctx, "SELECT COUNT(*) FROM prod.energy_readings")
		if err != nil {
			t.Fatalf("count target: %v", err)
		}
		if n != 3 {
			t.Errorf("target rows after update: got %d, want 3", n)
		}

		tbl, err := sess.QueryTable(ctx,
			"SELECT kwh FROM prod.energy_readings WHERE meter_id = 'm-0001' AND reading_day = '2024-01-01'", 10)
		if err != nil {
			t.Fatalf("query target: %v", err)
		}
		if len(tbl.Rows) != 1 || tbl.Rows[0][0].(float64) != 12 {
			t.Errorf("updated reading: %+v", tbl.Rows)
		}
	})

	t.Run("staging_cleanup", func(t *testing.T) {
		if err := stage.Cleanup(ctx, sess, log, staged2.Relation); err != nil {
			t.Fatalf("Cleanup: %v", err)
		}
		if _, err := sess.QueryInt64(ctx, "SELECT COUNT(*) FROM "+staged2.Relation); err == nil {
			t.Error("staging relation must be gone after cleanup")
		}
	})
}

func TestEndToEnd_RangeViolation(t *testing.T) {
	sess := newSession(t)
	ctx := context.Background()
	log := logging.Setup("text", false)

	file := writeFixture(t, t.TempDir(), "bad-readings.parquet", []readingRow{
		{MeterID: "m-0001", ReadingDay: "2024-01-01", KWH: -5, ValidFrom: "2024-01-01", ValidTo: "2024-12-31"},
	})
	staged, err := stage.LoadParquet(ctx, sess, log, []string{file})
	if err != nil {
		t.Fatalf("LoadParquet: %v", err)
	}

	checker := quality.NewChecker(sess, dialect.Postgres{}, log)
	_, err = checker.Run(ctx, staged.Relation, checkParams())

	var ce *quality.CheckError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CheckError, got %v", err)
	}
	if ce.Check != "value range check" || ce.Violations != 1 {
		t.Errorf("unexpected CheckError: %+v", ce)
	}
}

func TestEndToEnd_ReferentialViolation(t *testing.T) {
	sess := newSession(t)
	ctx := context.Background()
	log := logging.Setup("text", false)

	file := writeFixture(t, t.TempDir(), "unknown-meter.parquet", []readingRow{
		{MeterID: "m-9999", ReadingDay: "2024-01-01", KWH: 1, ValidFrom: "2024-01-01", ValidTo: "2024-12-31"},
	})
	staged, err := stage.LoadParquet(ctx, sess, log, []string{file})
	if err != nil {
		t.Fatalf("LoadParquet: %v", err)
	}

	checker := quality.NewChecker(sess, dialect.Postgres{}, log)
	_, err = checker.Run(ctx, staged.Relation, checkParams())

	var ce *quality.CheckError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CheckError, got %v", err)
	}
	if ce.Check != "referential integrity check" {
		t.Errorf("unexpected CheckError: %+v", ce)
	}
}

func TestStage_MixedSchemasRejected(t *testing.T) {
	sess := newSession(t)
	ctx := context.Background()
	log := logging.Setup("text", false)

	dir := t.TempDir()
	good := writeFixture(t, dir, "a.parquet", []readingRow{
		{MeterID: "m-0001", ReadingDay: "2024-01-01", KWH: 1},
	})

	type otherRow struct {
		ID int64 `parquet:"id"`
	}
	otherPath := filepath.Join(dir, "b.parquet")
	f, err := os.Create(otherPath)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	w := parquet.NewGenericWriter[otherRow](f)
	if _, err := w.Write([]otherRow{{ID: 1}}); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	f.Close()

	if _, err := stage.LoadParquet(ctx, sess, log, []string{good, otherPath}); err == nil {
		t.Fatal("expected error for mismatched schemas")
	}
}
