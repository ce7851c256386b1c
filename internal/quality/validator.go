// Package quality runs a fixed battery of SQL data quality checks over the
// papers table and turns the outcome into a process exit status.
package quality

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-etl/internal/observability"
	"github.com/helixir/paper-etl/internal/repository"
)

// Validator runs Checks against one table.
type Validator struct {
	db      repository.DBTX
	table   string
	quoted  string
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewValidator creates a Validator for table. An empty table means
// repository.DefaultTable. metrics may be nil.
func NewValidator(db repository.DBTX, table string, logger zerolog.Logger, metrics *observability.Metrics) *Validator {
	if table == "" {
		table = repository.DefaultTable
	}
	return &Validator{
		db:      db,
		table:   table,
		quoted:  pq.QuoteIdentifier(table),
		logger:  logger.With().Str("component", "validator").Str("table", table).Logger(),
		metrics: metrics,
	}
}

// Validate runs the pre-flight probe and then every check in order. A check
// whose query fails is recorded with StatusError and the remaining checks
// still run. Validate returns an error only when ctx is cancelled.
func (v *Validator) Validate(ctx context.Context) (*Report, error) {
	report := &Report{
		Table:     v.table,
		StartedAt: time.Now().UTC(),
		Checks:    make([]CheckResult, 0, len(Checks)),
	}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	if err := v.preflight(ctx, report); err != nil {
		return report, err
	}

	for _, check := range Checks {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("validation cancelled before %s: %w", check.Name, err)
		}

		result := v.run(ctx, check)
		if result.Status == StatusError {
			if err := ctx.Err(); err != nil {
				return report, fmt.Errorf("validation cancelled during %s: %w", check.Name, err)
			}
		}
		report.Checks = append(report.Checks, result)
		v.metrics.RecordQualityCheck(result.Name, string(result.Status), result.ViolationCount)
	}

	return report, nil
}

// preflight records whether the table exists and its row count. Failures are
// logged; the checks that follow surface them as errors.
func (v *Validator) preflight(ctx context.Context, report *Report) error {
	repo := repository.NewPgPaperRepository(v.db, v.table)

	exists, err := repo.TableExists(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("validation cancelled during pre-flight: %w", ctxErr)
		}
		v.logger.Error().Err(err).Msg("could not check table existence")
		return nil
	}
	report.TableExists = exists
	if !exists {
		v.logger.Error().Msg("table does not exist")
		return nil
	}

	total, err := repo.Count(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("validation cancelled during pre-flight: %w", ctxErr)
		}
		v.logger.Error().Err(err).Msg("could not count rows")
		return nil
	}
	report.TotalRows = total
	v.logger.Info().Int64("total_rows", total).Msg("running data quality checks")
	return nil
}

func (v *Validator) run(ctx context.Context, check Check) CheckResult {
	result := CheckResult{
		Name:          check.Name,
		Description:   check.Description,
		Category:      check.Category,
		Informational: check.Informational,
	}

	var count int64
	if err := v.db.QueryRow(ctx, check.SQL(v.quoted)).Scan(&count); err != nil {
		result.Status = StatusError
		result.Err = fmt.Errorf("check %s: %w", check.Name, err)
		return result
	}

	result.ViolationCount = count
	switch {
	case count == 0:
		result.Status = StatusPassed
	case check.Informational:
		result.Status = StatusInfo
	default:
		result.Status = StatusFailed
	}
	return result
}
