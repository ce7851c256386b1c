// Package ingest writes normalized papers to PostgreSQL in ordered chunks.
//
// Each chunk is first written with one multi-row upsert inside a single
// transaction. If that fails the transaction is rolled back and every paper of
// the chunk is retried in its own transaction, so one bad row costs only
// itself. Rows that fail alone are returned as data, never as an error.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-etl/internal/database"
	"github.com/helixir/paper-etl/internal/domain"
	"github.com/helixir/paper-etl/internal/observability"
	"github.com/helixir/paper-etl/internal/repository"
)

// DefaultBatchSize is the number of papers per chunk when none is configured.
const DefaultBatchSize = 100

// Chunk tiers used in logs and metrics.
const (
	TierBatch    = "batch"
	TierFallback = "fallback"
)

// Config controls chunking.
type Config struct {
	// Table is the target table. Empty means repository.DefaultTable.
	Table string

	// BatchSize is the number of papers per chunk. It is clamped to
	// [1, repository.MaxRowsPerStatement].
	BatchSize int
}

// RowFailure is a paper that could not be written even on its own.
type RowFailure struct {
	ExternalID string
	Err        error
}

// Reason classifies the failure from the PostgreSQL error code when one is available.
func (f RowFailure) Reason() string {
	var pgErr *pgconn.PgError
	if !errors.As(f.Err, &pgErr) {
		if errors.Is(f.Err, domain.ErrInvalidInput) {
			return "invalid_input"
		}
		return "error"
	}
	switch pgErr.Code {
	case "23505":
		return "unique_violation"
	case "23514":
		return "check_violation"
	case "23502":
		return "not_null_violation"
	case "22003":
		return "numeric_out_of_range"
	case "42P01":
		return "undefined_table"
	default:
		return "sqlstate_" + pgErr.Code
	}
}

// Result summarizes one Upsert call.
type Result struct {
	// Written is the number of rows inserted or updated.
	Written int64
	// Chunks is the number of chunks processed.
	Chunks int
	// FallbackChunks is the number of chunks that needed per-row retries.
	FallbackChunks int
	// Duplicates is the number of papers dropped because a later paper in the
	// same chunk carried the same external id.
	Duplicates int
	// Failures lists papers that were not written, in input order.
	Failures []RowFailure
}

// Upserter writes papers chunk by chunk with a per-row fallback.
type Upserter struct {
	starter   database.TxStarter
	table     string
	batchSize int
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// NewUpserter creates an Upserter. metrics may be nil.
func NewUpserter(starter database.TxStarter, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Upserter {
	table := cfg.Table
	if table == "" {
		table = repository.DefaultTable
	}
	return &Upserter{
		starter:   starter,
		table:     table,
		batchSize: clampBatchSize(cfg.BatchSize),
		logger:    logger.With().Str("component", "upserter").Logger(),
		metrics:   metrics,
	}
}

// BatchSize returns the effective chunk size.
func (u *Upserter) BatchSize() int {
	return u.batchSize
}

// Upsert writes papers in consecutive chunks, preserving input order.
// It returns an error only when ctx is cancelled; the partial result is
// returned alongside it.
func (u *Upserter) Upsert(ctx context.Context, papers []domain.Paper) (*Result, error) {
	result := &Result{}

	for start := 0; start < len(papers); start += u.batchSize {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("upsert stopped before chunk %d: %w", result.Chunks, err)
		}

		end := min(start+u.batchSize, len(papers))
		chunk, dropped := dedupe(papers[start:end])
		result.Duplicates += dropped

		if err := u.writeChunk(ctx, result.Chunks, chunk, result); err != nil {
			return result, err
		}
		result.Chunks++
	}

	u.logger.Info().
		Int("papers", len(papers)).
		Int("chunks", result.Chunks).
		Int("fallback_chunks", result.FallbackChunks).
		Int64("written", result.Written).
		Int("failed", len(result.Failures)).
		Int("duplicates", result.Duplicates).
		Msg("upsert finished")

	return result, nil
}

// writeChunk runs the batch tier and, if it fails, the per-row tier.
func (u *Upserter) writeChunk(ctx context.Context, index int, chunk []domain.Paper, result *Result) error {
	logger := observability.WithChunkContext(u.logger, index, len(chunk))
	started := time.Now()

	var written int64
	err := database.RunInTx(ctx, u.starter, func(tx pgx.Tx) error {
		n, err := repository.NewPgPaperRepository(tx, u.table).UpsertMany(ctx, chunk)
		written = n
		return err
	})
	if err == nil {
		result.Written += written
		u.metrics.RecordChunk(TierBatch, written, 0, time.Since(started).Seconds())
		logger.Debug().Int64("written", written).Msg("chunk written")
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("upsert cancelled in chunk %d: %w", index, ctxErr)
	}

	logger.Warn().Err(err).Msg("chunk upsert failed, retrying rows individually")
	result.FallbackChunks++

	written = 0
	failed := 0
	for i := range chunk {
		paper := &chunk[i]
		rowErr := database.RunInTx(ctx, u.starter, func(tx pgx.Tx) error {
			return repository.NewPgPaperRepository(tx, u.table).Upsert(ctx, paper)
		})
		if rowErr == nil {
			written++
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.Written += written
			return fmt.Errorf("upsert cancelled in chunk %d: %w", index, ctxErr)
		}

		failure := RowFailure{ExternalID: paper.ExternalID, Err: rowErr}
		result.Failures = append(result.Failures, failure)
		failed++
		rowLogger := observability.WithPaperContext(logger, paper.ExternalID)
		rowLogger.Error().
			Err(rowErr).
			Str("reason", failure.Reason()).
			Msg("paper upsert failed")
	}

	result.Written += written
	u.metrics.RecordChunk(TierFallback, written, failed, time.Since(started).Seconds())
	logger.Info().Int64("written", written).Int("failed", failed).Msg("chunk written row by row")
	return nil
}

// dedupe keeps one paper per external id, with the value of its last
// occurrence at the position of its first. It returns the number dropped.
func dedupe(chunk []domain.Paper) ([]domain.Paper, int) {
	seen := make(map[string]int, len(chunk))
	out := make([]domain.Paper, 0, len(chunk))
	for _, p := range chunk {
		if p.ExternalID == "" {
			out = append(out, p)
			continue
		}
		if idx, ok := seen[p.ExternalID]; ok {
			out[idx] = p
			continue
		}
		seen[p.ExternalID] = len(out)
		out = append(out, p)
	}
	return out, len(chunk) - len(out)
}

func clampBatchSize(n int) int {
	switch {
	case n <= 0:
		return DefaultBatchSize
	case n > repository.MaxRowsPerStatement:
		return repository.MaxRowsPerStatement
	default:
		return n
	}
}
