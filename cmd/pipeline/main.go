// Package main provides the paper ETL command line: fetch works from
// OpenAlex, upsert them into PostgreSQL and validate the result.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Exit codes.
const (
	ExitSuccess = 0
	ExitError   = 1
)

// errRunFailed is returned by commands whose outcome was already logged.
var errRunFailed = errors.New("run failed")

func main() {
	os.Exit(execute())
}

func execute() int {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		return ExitError
	}
	return ExitSuccess
}

var rootCmd = &cobra.Command{
	Use:   "paper-etl",
	Short: "OpenAlex paper ETL pipeline",
	Long: `paper-etl fetches recent works for a research area from OpenAlex,
normalizes them into flat rows, upserts them into PostgreSQL and runs
data quality checks over the stored table.

Configuration comes from config.yaml, a .env file and PAPERETL_*
environment variables. Flags override configuration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = Version
}
