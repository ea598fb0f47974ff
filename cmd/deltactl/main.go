package main

import (
	"os"

	"github.com/dpstorage/deltactl/internal/exitcode"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitcode.UsageError)
	}
}
