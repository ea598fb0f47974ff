// Package stage lands Parquet files in an unlogged staging table so the
// quality checks can run over them as a single relation. Each row is tagged
// with input_file_name; the deduplication pass uses it to keep the latest
// record per key when the same key arrives in several files.
package stage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"github.com/dpstorage/deltactl/internal/db"
	"github.com/dpstorage/deltactl/internal/engine"
	"github.com/dpstorage/deltactl/internal/model"
)

const (
	stagingSchema = "staging"
	fileColumn    = "input_file_name"
	readBatchSize = 256
)

// LoadParquet stages the given Parquet files into a fresh unlogged table
// named staging.load_<batch> and returns its identity and row counts.
// All files must share one flat schema. Postgres engine only.
func LoadParquet(ctx context.Context, sess *engine.PostgresSession, log zerolog.Logger, files []string) (*model.StageSummary, error) {
	start := time.Now()
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to stage")
	}

	cols, err := fileColumns(files[0])
	if err != nil {
		return nil, err
	}

	// The synthetic file column is only added when the data does not
	// already carry one.
	synthetic := true
	for _, c := range cols {
		if c.Name == fileColumn {
			synthetic = false
			break
		}
	}

	batchID := uuid.New()
	table := "load_" + strings.ReplaceAll(batchID.String(), "-", "")[:12]
	relation := stagingSchema + "." + table

	if _, err := sess.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+stagingSchema); err != nil {
		return nil, fmt.Errorf("create staging schema: %w", err)
	}
	if _, err := sess.Exec(ctx, createTableDDL(table, cols, synthetic)); err != nil {
		return nil, fmt.Errorf("create staging table: %w", err)
	}

	copyColumns := make([]string, 0, len(cols)+1)
	if synthetic {
		copyColumns = append(copyColumns, fileColumn)
	}
	for _, c := range cols {
		copyColumns = append(copyColumns, c.Name)
	}

	var rowsRead, rowsStaged int64
	for _, path := range files {
		fcols, err := fileColumns(path)
		if err != nil {
			return nil, err
		}
		if !sameColumns(cols, fcols) {
			return nil, fmt.Errorf("file %s does not match the schema of %s", path, files[0])
		}

		read, staged, err := copyFile(ctx, sess, table, copyColumns, path, len(cols), synthetic)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", path, err)
		}
		rowsRead += read
		rowsStaged += staged

		log.Info().
			Str("file", filepath.Base(path)).
			Int64("rows", staged).
			Msg("file staged")
	}

	dur := time.Since(start)
	log.Info().
		Str("relation", relation).
		Str("batch_id", batchID.String()).
		Int("files", len(files)).
		Int64("rows_staged", rowsStaged).
		Dur("duration", dur).
		Msg("staging complete")

	return &model.StageSummary{
		Relation:   relation,
		BatchID:    batchID.String(),
		Files:      len(files),
		RowsRead:   rowsRead,
		RowsStaged: rowsStaged,
		Duration:   dur,
	}, nil
}

// Cleanup drops a staging relation created by LoadParquet.
func Cleanup(ctx context.Context, sess *engine.PostgresSession, log zerolog.Logger, relation string) error {
	if _, err := sess.Exec(ctx, "DROP TABLE IF EXISTS "+relation); err != nil {
		return err
	}
	log.Info().Str("relation", relation).Msg("staging cleanup complete")
	return nil
}

// copyFile streams one Parquet file into the staging table via COPY, with a
// producer goroutine feeding a channel-backed CopyFromSource.
func copyFile(ctx context.Context, sess *engine.PostgresSession, table string, copyColumns []string, path string, numCols int, synthetic bool) (int64, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open parquet file: %w", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("stat parquet file: %w", err)
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return 0, 0, fmt.Errorf("open parquet: %w", err)
	}

	base := filepath.Base(path)
	offset := 0
	if synthetic {
		offset = 1
	}

	ch := make(chan []any, readBatchSize)
	errCh := make(chan error, 1)
	var rowsRead int64

	go func() {
		defer close(ch)
		buf := make([]parquet.Row, readBatchSize)

		for _, rg := range pf.RowGroups() {
			rows := rg.Rows()
			for {
				n, readErr := rows.ReadRows(buf)
				for i := 0; i < n; i++ {
					rowsRead++
					vals := make([]any, numCols+offset)
					if synthetic {
						vals[0] = base
					}
					for _, v := range buf[i] {
						vals[v.Column()+offset] = goValue(v)
					}
					select {
					case ch <- vals:
					case <-ctx.Done():
						rows.Close()
						errCh <- ctx.Err()
						return
					}
				}
				if readErr == io.EOF {
					break
				}
				if readErr != nil {
					rows.Close()
					errCh <- fmt.Errorf("read parquet at row %d: %w", rowsRead, readErr)
					return
				}
			}
			if err := rows.Close(); err != nil {
				errCh <- fmt.Errorf("close row group: %w", err)
				return
			}
		}
		errCh <- nil
	}()

	source := db.NewChannelSource(ch)
	rowsStaged, copyErr := sess.CopyFrom(ctx,
		pgx.Identifier{stagingSchema, table},
		copyColumns,
		source,
	)

	prodErr := <-errCh
	if prodErr != nil {
		return rowsRead, rowsStaged, fmt.Errorf("producer: %w", prodErr)
	}
	if copyErr != nil {
		return rowsRead, rowsStaged, fmt.Errorf("copy: %w", copyErr)
	}
	return rowsRead, rowsStaged, nil
}

// fileColumns opens a Parquet file just long enough to derive its columns.
func fileColumns(path string) ([]column, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat parquet file: %w", err)
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	return tableColumns(pf.Schema())
}

// createTableDDL builds the unlogged staging table definition.
func createTableDDL(table string, cols []column, synthetic bool) string {
	var defs []string
	if synthetic {
		defs = append(defs, quoteIdent(fileColumn)+" text")
	}
	for _, c := range cols {
		defs = append(defs, quoteIdent(c.Name)+" "+c.SQLType)
	}
	return fmt.Sprintf("CREATE UNLOGGED TABLE %s.%s (%s)",
		stagingSchema, quoteIdent(table), strings.Join(defs, ", "))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
