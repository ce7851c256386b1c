package main

import (
	"github.com/spf13/cobra"

	"github.com/helixir/paper-etl/internal/pipeline"
	"github.com/helixir/paper-etl/internal/snapshot"
)

var loadOpts runFlags

func init() {
	loadCmd.Flags().IntVar(&loadOpts.batchSize, "batch-size", 0, "Papers per upsert chunk (default from config: 100)")
	loadCmd.Flags().BoolVar(&loadOpts.skipTests, "skip-tests", false, "Skip data quality checks after loading")
	rootCmd.AddCommand(loadCmd)
}

var loadCmd = &cobra.Command{
	Use:   "load <snapshot>...",
	Short: "Upsert papers from snapshot files",
	Long: `Replay snapshot files into the papers table, one file at a time in the
order given, then run the data quality checks once.

Loading is idempotent: replaying a file leaves the table unchanged except
for updated_at.

Examples:
  paper-etl load temp/ai_papers_20250610_120000.json
  paper-etl load temp/*.json --batch-size 500 --skip-tests`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLoad,
}

func runLoad(cmd *cobra.Command, args []string) error {
	a, err := newApp("load")
	if err != nil {
		return err
	}
	loadOpts.markChanged(cmd)
	opts := a.pipelineOptions(loadOpts)
	if err := opts.Validate(); err != nil {
		return err
	}

	ctx, stop := commandContext(cmd)
	defer stop()

	db, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	publisher := a.publisher()
	defer closePublisher(publisher, a.logger)

	deps := a.storeDeps(db, opts)
	deps.Source = snapshot.NewFileSource(args[0])
	deps.Events = publisher
	p, err := pipeline.New(deps, opts)
	if err != nil {
		return err
	}
	defer a.pushMetrics(ctx)

	var (
		fetched int
		written int64
	)
	for _, path := range args {
		result := p.Ingest(ctx, snapshot.NewFileSource(path))
		if result.State == pipeline.StateAborted {
			a.logger.Error().Err(result.Err).Str("file", path).Msg("load aborted")
			return errRunFailed
		}
		fetched += result.Fetched
		written += result.Written
	}
	a.logger.Info().Int("files", len(args)).Int("records", fetched).Int64("written", written).Msg("snapshots loaded")

	if fetched == 0 {
		a.logger.Info().Msg("no records loaded, skipping validation")
		return nil
	}
	if opts.SkipValidation {
		return nil
	}
	report, err := deps.Checker.Validate(ctx)
	if err != nil {
		return err
	}
	report.Log(a.logger)
	if !report.Passed() {
		return errRunFailed
	}
	return nil
}
