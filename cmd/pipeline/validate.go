package main

import (
	"github.com/spf13/cobra"

	"github.com/helixir/paper-etl/internal/quality"
)

var validateTable string

func init() {
	validateCmd.Flags().StringVar(&validateTable, "table", "", "Table to validate (default from config: papers)")
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run data quality checks",
	Long: `Run every data quality check against the papers table and log one
line per check. Exits 1 when any check failed or could not run.

Examples:
  paper-etl validate
  paper-etl validate --table papers_staging`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, _ []string) error {
	a, err := newApp("validate")
	if err != nil {
		return err
	}
	table := a.cfg.Database.Table
	if validateTable != "" {
		table = validateTable
	}

	ctx, stop := commandContext(cmd)
	defer stop()

	db, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := quality.NewValidator(db, table, a.logger, a.metrics).Validate(ctx)
	if err != nil {
		return err
	}
	report.Log(a.logger)
	a.pushMetrics(ctx)
	if !report.Passed() {
		return errRunFailed
	}
	return nil
}
