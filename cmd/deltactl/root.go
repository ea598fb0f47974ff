package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dpstorage/deltactl/internal/config"
)

var (
	cfg        config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "deltactl",
	Short: "Merge orchestration and data-quality checks for lakehouse tables",
	Long: "deltactl sequences MERGE runs and data-quality checks against an external\n" +
		"SQL engine (Delta Lake over ODBC, or Postgres). All computation happens in\n" +
		"the engine; deltactl builds the statements, sequences them and reports.",
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfg.DSN, "dsn", os.Getenv("DELTACTL_DSN"), "engine connection string (or set DELTACTL_DSN)")
	pf.StringVar(&cfg.Engine, "engine", "postgres", "SQL engine: postgres or delta")
	pf.StringVar(&configPath, "config", "", "path to YAML config (environments and quality rules)")
	pf.StringVar(&cfg.LogFormat, "log-format", "text", "log format: text or json")
	pf.BoolVar(&cfg.Debug, "debug", false, "log every generated SQL statement")
}
