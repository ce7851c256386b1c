// Package pipeline sequences one ETL run: fetch, normalize, upsert and
// validate, ending in DONE or ABORTED with a process exit code.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-etl/internal/config"
	"github.com/helixir/paper-etl/internal/domain"
	"github.com/helixir/paper-etl/internal/ingest"
	"github.com/helixir/paper-etl/internal/normalize"
	"github.com/helixir/paper-etl/internal/observability"
	"github.com/helixir/paper-etl/internal/papersources"
	"github.com/helixir/paper-etl/internal/quality"
)

// RecordSource fetches raw records for a window.
type RecordSource interface {
	Fetch(ctx context.Context, params papersources.FetchParams) ([]domain.RawRecord, error)
	Name() string
}

// StoreProbe checks that the store is reachable.
type StoreProbe interface {
	Ping(ctx context.Context) error
}

// SchemaManager brings the table schema up to date.
type SchemaManager interface {
	EnsureSchema(ctx context.Context) error
}

// PaperWriter persists normalized papers.
type PaperWriter interface {
	Upsert(ctx context.Context, papers []domain.Paper) (*ingest.Result, error)
}

// QualityChecker validates the stored table.
type QualityChecker interface {
	Validate(ctx context.Context) (*quality.Report, error)
}

// SnapshotArchiver stores fetched records before they are written.
type SnapshotArchiver interface {
	Archive(ctx context.Context, records []domain.RawRecord, days int, now time.Time) (string, error)
}

// EventPublisher announces finished runs.
type EventPublisher interface {
	Publish(ctx context.Context, summary domain.RunSummary) error
}

// Deps are the collaborators of a pipeline. Schema, Snapshots, Events and
// Metrics are optional. Checker may be nil when validation is skipped.
type Deps struct {
	Source    RecordSource
	Store     StoreProbe
	Schema    SchemaManager
	Writer    PaperWriter
	Checker   QualityChecker
	Snapshots SnapshotArchiver
	Events    EventPublisher
	Metrics   *observability.Metrics
	Logger    zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Options control a run.
type Options struct {
	// Days is the lookback window for publication dates.
	Days int `validate:"min=1"`
	// BatchSize is the upsert chunk size the writer was built with.
	BatchSize int `validate:"min=1,max=2000"`
	// SkipValidation skips the data quality checks.
	SkipValidation bool
}

var validate = validator.New()

// Validate checks option ranges.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: pipeline options: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// Pipeline runs the ETL sequence.
type Pipeline struct {
	deps Deps
	opts Options
}

// New creates a Pipeline after validating opts and the required deps.
func New(deps Deps, opts Options) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Source == nil:
		return nil, domain.NewValidationError("source", "record source is required")
	case deps.Store == nil:
		return nil, domain.NewValidationError("store", "store probe is required")
	case deps.Writer == nil:
		return nil, domain.NewValidationError("writer", "paper writer is required")
	case deps.Checker == nil && !opts.SkipValidation:
		return nil, domain.NewValidationError("checker", "quality checker is required unless validation is skipped")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.Logger = deps.Logger.With().Str("component", "pipeline").Logger()
	return &Pipeline{deps: deps, opts: opts}, nil
}

// Run performs a full run against the configured source.
func (p *Pipeline) Run(ctx context.Context) *RunResult {
	return p.execute(ctx, p.deps.Source, true)
}

// Ingest fetches from source and upserts, without snapshots or validation.
func (p *Pipeline) Ingest(ctx context.Context, source RecordSource) *RunResult {
	return p.execute(ctx, source, false)
}

func (p *Pipeline) execute(ctx context.Context, source RecordSource, full bool) *RunResult {
	run := &RunResult{
		RunID:     uuid.NewString(),
		Source:    source.Name(),
		StartedAt: p.deps.Now().UTC(),
	}
	ctx = observability.WithRunID(ctx, run.RunID)
	logger := observability.WithRunContext(p.deps.Logger, run.RunID, run.Source)

	defer p.finish(ctx, run, logger)

	// Fetch.
	run.transition(StateFetching)
	from := run.StartedAt.AddDate(0, 0, -p.opts.Days)
	logger.Info().Int("days", p.opts.Days).Time("from", from).Msg("fetching records")

	records, err := source.Fetch(ctx, papersources.FetchParams{From: from})
	if err != nil {
		run.abort(fmt.Errorf("fetching records: %w", err))
		return run
	}
	run.Fetched = len(records)
	logger.Info().Int("fetched", run.Fetched).Msg("records fetched")

	if run.Fetched == 0 {
		logger.Info().Msg("no records fetched, nothing to do")
		run.transition(StateDone)
		return run
	}

	if full && p.deps.Snapshots != nil {
		loc, err := p.deps.Snapshots.Archive(ctx, records, p.opts.Days, run.StartedAt)
		if err != nil {
			logger.Warn().Err(err).Msg("snapshot archiving failed, continuing")
		}
		run.SnapshotLocation = loc
	}

	// Store readiness.
	if err := p.deps.Store.Ping(ctx); err != nil {
		run.abort(fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err))
		return run
	}
	if p.deps.Schema != nil {
		if err := p.deps.Schema.EnsureSchema(ctx); err != nil {
			run.abort(fmt.Errorf("ensuring schema: %w", err))
			return run
		}
	}

	// Normalize.
	run.transition(StateNormalizing)
	batch := normalize.NormalizeAll(records)
	run.Skipped = batch.Skipped()
	run.Rejections = batch.Rejections
	p.deps.Metrics.RecordRecordsSkipped(run.Skipped)
	for _, rej := range batch.Rejections {
		logger.Warn().Int("index", rej.Index).Err(rej.Err).Msg("record skipped")
	}
	logger.Info().Int("normalized", len(batch.Papers)).Int("skipped", run.Skipped).Msg("records normalized")

	// Upsert.
	run.transition(StateUpserting)
	result, err := p.deps.Writer.Upsert(ctx, batch.Papers)
	if result != nil {
		run.Written = result.Written
		run.Failures = result.Failures
	}
	if err != nil {
		run.abort(fmt.Errorf("upserting papers: %w", err))
		return run
	}

	if !full || p.opts.SkipValidation {
		if full {
			logger.Info().Msg("validation skipped")
		}
		run.transition(StateDone)
		return run
	}

	// Validate.
	run.transition(StateValidating)
	report, err := p.deps.Checker.Validate(ctx)
	run.Report = report
	if err != nil {
		run.abort(fmt.Errorf("validating: %w", err))
		return run
	}
	report.Log(logger)

	run.transition(StateDone)
	return run
}

// finish records metrics, logs the summary and publishes the run event.
func (p *Pipeline) finish(ctx context.Context, run *RunResult, logger zerolog.Logger) {
	run.FinishedAt = p.deps.Now().UTC()
	summary := run.Summary()

	p.deps.Metrics.RecordRunFinished(string(run.State), run.FinishedAt.Sub(run.StartedAt).Seconds(), float64(run.FinishedAt.Unix()))

	ev := logger.Info()
	if run.State == StateAborted {
		ev = logger.Error().Err(run.Err)
	}
	ev.Str("state", string(run.State)).
		Int("fetched", run.Fetched).
		Int("skipped", run.Skipped).
		Int64("written", run.Written).
		Int("failed_rows", len(run.Failures)).
		Bool("validated", run.Report != nil).
		Int("exit_code", run.ExitCode()).
		Dur("duration", run.FinishedAt.Sub(run.StartedAt)).
		Msg("pipeline run finished")

	if p.deps.Events == nil {
		return
	}
	// Publishing must not be skipped because the run itself was cancelled.
	if err := p.deps.Events.Publish(context.WithoutCancel(ctx), summary); err != nil {
		logger.Warn().Err(err).Msg("failed to publish run event")
	}
}

// DefaultOptions returns options from pipeline configuration.
func DefaultOptions(cfg config.PipelineConfig) Options {
	return Options{
		Days:           cfg.Days,
		BatchSize:      cfg.BatchSize,
		SkipValidation: cfg.SkipTests,
	}
}
