package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dpstorage/deltactl/internal/dialect"
	"github.com/dpstorage/deltactl/internal/engine"
	"github.com/dpstorage/deltactl/internal/exitcode"
	"github.com/dpstorage/deltactl/internal/logging"
	"github.com/dpstorage/deltactl/internal/quality"
	"github.com/dpstorage/deltactl/internal/stage"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run data-quality checks and materialize the cleaned view",
	RunE:  runCheck,
}

func init() {
	f := checkCmd.Flags()
	f.StringVar(&cfg.Relation, "relation", "", "relation (table or view) to check")
	f.StringSliceVar(&cfg.Files, "file", nil, "Parquet file to stage and check (repeatable)")
	f.StringSliceVar(&cfg.KeyColumns, "keys", nil, "comma-separated key columns (overrides rules file)")
	f.BoolVar(&cfg.KeepStaging, "keep-staging", false, "keep the staging table after the run")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat, cfg.Debug)
	ctx := context.Background()

	if configPath != "" {
		if err := cfg.LoadFromFile(configPath); err != nil {
			log.Error().Err(err).Msg("config load failed")
			os.Exit(exitcode.ConfigError)
		}
	}
	if err := cfg.ValidateEngine(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}
	if err := cfg.ValidateCheck(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	sess, err := engine.Open(ctx, cfg.Engine, cfg.DSN)
	if err != nil {
		log.Error().Err(err).Msg("engine connection failed")
		os.Exit(exitcode.DBConnError)
	}
	defer sess.Close()

	relation := cfg.Relation
	if len(cfg.Files) > 0 {
		pg, ok := sess.(*engine.PostgresSession)
		if !ok {
			log.Error().Msg("--file staging is only supported on the postgres engine")
			os.Exit(exitcode.UsageError)
		}
		staged, err := stage.LoadParquet(ctx, pg, log, cfg.Files)
		if err != nil {
			log.Error().Err(err).Msg("staging failed")
			os.Exit(exitcode.StageError)
		}
		relation = staged.Relation
		if !cfg.KeepStaging {
			defer func() {
				if err := stage.Cleanup(context.Background(), pg, log, staged.Relation); err != nil {
					log.Warn().Err(err).Msg("staging cleanup failed (non-fatal)")
				}
			}()
		}
	}

	params := quality.ParamsFromRules(cfg.Rules)
	params.KeyColumns = cfg.EffectiveKeyColumns()

	checker := quality.NewChecker(sess, dialect.ForEngine(cfg.Engine), log)
	report, err := checker.Run(ctx, relation, params)
	if err != nil {
		renderReport(report)
		var ce *quality.CheckError
		if errors.As(err, &ce) {
			log.Error().Err(ce).Msg("quality checks failed")
		} else {
			log.Error().Err(err).Msg("quality checks failed")
		}
		os.Exit(exitcode.QualityError)
	}

	renderReport(report)
	fmt.Printf("All checks passed. Cleaned data available as %q (%.1fs)\n",
		report.CleanedView, report.DurationTotal.Seconds())
	return nil
}
