package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dpstorage/deltactl/internal/dialect"
	"github.com/dpstorage/deltactl/internal/engine"
	"github.com/dpstorage/deltactl/internal/exitcode"
	"github.com/dpstorage/deltactl/internal/logging"
	"github.com/dpstorage/deltactl/internal/merge"
	"github.com/dpstorage/deltactl/internal/quality"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Dry run: show the destination, merge SQL and checks (no writes)",
	RunE:  runPlan,
}

func init() {
	f := planCmd.Flags()
	f.StringVar(&cfg.Environment, "env", "", "destination environment (required)")
	f.StringVar(&cfg.Dataset, "dataset", "", "source dataset identifier (required)")
	f.StringVar(&cfg.ViewName, "view", "cleaned_data_view", "view holding the new data")
	f.StringSliceVar(&cfg.KeyColumns, "keys", nil, "comma-separated key columns (required)")
	_ = planCmd.MarkFlagRequired("env")
	_ = planCmd.MarkFlagRequired("dataset")
	_ = planCmd.MarkFlagRequired("keys")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat, cfg.Debug)
	ctx := context.Background()

	if configPath == "" {
		log.Error().Msg("--config is required for plan (environment destinations)")
		os.Exit(exitcode.UsageError)
	}
	if err := cfg.LoadFromFile(configPath); err != nil {
		log.Error().Err(err).Msg("config load failed")
		os.Exit(exitcode.ConfigError)
	}
	if err := cfg.ValidateMerge(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	dest, err := merge.ResolveDestination(&cfg, cfg.Environment, cfg.Dataset)
	if err != nil {
		log.Error().Err(err).Msg("destination resolution failed")
		os.Exit(exitcode.ConfigError)
	}

	d := dialect.ForEngine(cfg.Engine)

	// Explicit-column dialects need the target's column list from the
	// engine; with no DSN the plan stops at the ON clause.
	var columns []string
	if !d.SupportsMergeStar() && cfg.DSN != "" {
		sess, err := engine.Open(ctx, cfg.Engine, cfg.DSN)
		if err != nil {
			log.Error().Err(err).Msg("engine connection failed")
			os.Exit(exitcode.DBConnError)
		}
		defer sess.Close()
		columns, err = sess.QueryStrings(ctx, d.ColumnsQuery(dest.Qualified()))
		if err != nil {
			log.Error().Err(err).Msg("listing target columns failed")
			os.Exit(exitcode.MergeError)
		}
	}

	fmt.Println("=== deltactl plan ===")
	fmt.Printf("Engine:      %s\n", d.Name())
	fmt.Printf("Environment: %s\n", cfg.Environment)
	fmt.Printf("Dataset:     %s\n", cfg.Dataset)
	fmt.Printf("Path:        %s\n", dest.Path)
	fmt.Printf("Database:    %s\n", dest.Database)
	fmt.Printf("Table:       %s\n", dest.Table)
	fmt.Printf("Source view: %s\n", cfg.ViewName)
	fmt.Printf("Keys:        %s\n", strings.Join(cfg.KeyColumns, ", "))
	fmt.Println()

	mergeSQL, err := merge.BuildMergeSQL(d, dest.Qualified(), cfg.ViewName, cfg.KeyColumns, columns)
	if err != nil {
		fmt.Printf("Merge statement: unavailable offline (%v); pass --dsn to expand it\n", err)
	} else {
		fmt.Println("Merge statement:")
		fmt.Println(mergeSQL)
	}

	params := quality.ParamsFromRules(cfg.Rules)
	params.KeyColumns = cfg.EffectiveKeyColumns()
	fmt.Println()
	fmt.Println("Quality checks that would run:")
	for _, name := range params.Checks() {
		fmt.Printf("  - %s\n", name)
	}

	return nil
}
