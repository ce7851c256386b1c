package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-etl/internal/database"
	"github.com/helixir/paper-etl/internal/ingest"
	"github.com/helixir/paper-etl/internal/pipeline"
	"github.com/helixir/paper-etl/internal/quality"
)

// runFlags are shared by run and load.
type runFlags struct {
	days       int
	batchSize  int
	skipTests  bool
	noSnapshot bool

	// daysSet and batchSizeSet record flags given on the command line, so
	// explicit out of range values are rejected instead of ignored.
	daysSet      bool
	batchSizeSet bool
}

// markChanged records which value flags cmd was given.
func (f *runFlags) markChanged(cmd *cobra.Command) {
	f.daysSet = cmd.Flags().Changed("days")
	f.batchSizeSet = cmd.Flags().Changed("batch-size")
}

var runOpts runFlags

func init() {
	runCmd.Flags().IntVar(&runOpts.days, "days", 0, "Days of publications to fetch (default from config: 3)")
	runCmd.Flags().IntVar(&runOpts.batchSize, "batch-size", 0, "Papers per upsert chunk (default from config: 100)")
	runCmd.Flags().BoolVar(&runOpts.skipTests, "skip-tests", false, "Skip data quality checks")
	runCmd.Flags().BoolVar(&runOpts.noSnapshot, "no-snapshot", false, "Do not archive fetched records")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, upsert and validate recent papers",
	Long: `Fetch recent works from OpenAlex, upsert them into the papers table
and run the data quality checks.

Exits 0 when the run finished (including runs that fetched nothing or
skipped validation) and 1 when it aborted or a check failed. The database
is only contacted once records were fetched.

Examples:
  paper-etl run
  paper-etl run --days 7 --batch-size 500
  paper-etl run --skip-tests --no-snapshot`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

// pipelineOptions merges flags over configured defaults.
func (a *app) pipelineOptions(f runFlags) pipeline.Options {
	opts := pipeline.DefaultOptions(a.cfg.Pipeline)
	if f.daysSet {
		opts.Days = f.days
	}
	if f.batchSizeSet {
		opts.BatchSize = f.batchSize
	}
	if f.skipTests {
		opts.SkipValidation = true
	}
	return opts
}

// storeDeps wires the database-backed pipeline collaborators.
func (a *app) storeDeps(db *database.DB, opts pipeline.Options) pipeline.Deps {
	table := a.cfg.Database.Table
	deps := pipeline.Deps{
		Store:   db,
		Writer:  ingest.NewUpserter(db, ingest.Config{Table: table, BatchSize: opts.BatchSize}, a.logger, a.metrics),
		Checker: quality.NewValidator(db, table, a.logger, a.metrics),
		Metrics: a.metrics,
		Logger:  a.logger,
	}
	if a.cfg.Database.MigrationAutoRun {
		deps.Schema = database.NewSchemaManager(db, a.cfg.Database.MigrationPath, a.logger)
	}
	return deps
}

func runRun(cmd *cobra.Command, _ []string) error {
	a, err := newApp("pipeline")
	if err != nil {
		return err
	}
	runOpts.markChanged(cmd)
	opts := a.pipelineOptions(runOpts)
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
	deps.Source = a.openAlex()
	deps.Events = publisher
	if a.cfg.Snapshot.Enabled && !runOpts.noSnapshot {
		archiver, err := a.archiver(ctx, "")
		if err != nil {
			return err
		}
		deps.Snapshots = archiver
	}

	p, err := pipeline.New(deps, opts)
	if err != nil {
		return err
	}

	result := p.Run(ctx)
	a.pushMetrics(ctx)
	return exitFor(result)
}

// exitFor turns a finished run into the command error.
func exitFor(result *pipeline.RunResult) error {
	if result.ExitCode() != ExitSuccess {
		return errRunFailed
	}
	return nil
}

// commandContext returns a context cancelled on SIGINT or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}
