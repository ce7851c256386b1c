//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-etl/internal/database"
	"github.com/helixir/paper-etl/internal/domain"
	"github.com/helixir/paper-etl/internal/ingest"
	"github.com/helixir/paper-etl/internal/pipeline"
	"github.com/helixir/paper-etl/internal/quality"
	"github.com/helixir/paper-etl/internal/repository"
	"github.com/helixir/paper-etl/internal/snapshot"
)

func rawWork(n, cited int) domain.RawRecord {
	return domain.RawRecord{
		"id":               fmt.Sprintf("https://openalex.org/W%d", n),
		"doi":              fmt.Sprintf("https://doi.org/10.1234/w%d", n),
		"title":            fmt.Sprintf("Paper %d", n),
		"type":             "article",
		"publication_date": "2025-06-01",
		"publication_year": 2025,
		"primary_topic": map[string]any{
			"display_name": "Machine Learning Methods",
			"score":        0.98,
			"subfield":     map[string]any{"display_name": "Artificial Intelligence"},
			"field":        map[string]any{"display_name": "Computer Science"},
			"domain":       map[string]any{"display_name": "Physical Sciences"},
		},
		"open_access":                    map[string]any{"is_oa": true, "oa_status": "gold"},
		"cited_by_count":                 cited,
		"citation_normalized_percentile": map[string]any{"value": 0.5, "is_in_top_1_percent": false, "is_in_top_10_percent": false},
		"countries_distinct_count":       2,
		"institutions_distinct_count":    3,
	}
}

func writeSnapshot(t *testing.T, records []domain.RawRecord) string {
	t.Helper()
	dir := t.TempDir()
	path, err := snapshot.Write(dir, records, 3, time.Now().UTC())
	require.NoError(t, err)
	return path
}

func newPipeline(t *testing.T, batchSize int) (*pipeline.Pipeline, *quality.Validator) {
	t.Helper()
	logger := zerolog.Nop()
	validator := quality.NewValidator(testDB, "papers", logger, nil)
	p, err := pipeline.New(pipeline.Deps{
		Source:  snapshot.NewFileSource("unused"),
		Store:   testDB,
		Schema:  database.NewSchemaManager(testDB, migrationsPath, logger),
		Writer:  ingest.NewUpserter(testDB, ingest.Config{Table: "papers", BatchSize: batchSize}, logger, nil),
		Checker: validator,
		Logger:  logger,
	}, pipeline.Options{Days: 3, BatchSize: batchSize})
	require.NoError(t, err)
	return p, validator
}

func TestLoad_Idempotent(t *testing.T) {
	cleanPapers(t)
	ctx := context.Background()
	repo := repository.NewPgPaperRepository(testDB, "papers")

	records := make([]domain.RawRecord, 0, 25)
	for i := 1; i <= 25; i++ {
		records = append(records, rawWork(i, i))
	}
	path := writeSnapshot(t, records)
	p, validator := newPipeline(t, 10)

	first := p.Ingest(ctx, snapshot.NewFileSource(path))
	require.Equal(t, pipeline.StateDone, first.State, "%v", first.Err)
	assert.Equal(t, int64(25), first.Written)

	before, err := repo.GetByExternalID(ctx, "W7")
	require.NoError(t, err)

	second := p.Ingest(ctx, snapshot.NewFileSource(path))
	require.Equal(t, pipeline.StateDone, second.State)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(25), count)

	after, err := repo.GetByExternalID(ctx, "W7")
	require.NoError(t, err)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))
	assert.Equal(t, before.Title, after.Title)

	report, err := validator.Validate(ctx)
	require.NoError(t, err)
	assert.True(t, report.Passed())
	assert.Equal(t, int64(25), report.TotalRows)
}

func TestLoad_LaterSnapshotWins(t *testing.T) {
	cleanPapers(t)
	ctx := context.Background()
	repo := repository.NewPgPaperRepository(testDB, "papers")
	p, _ := newPipeline(t, 100)

	older := writeSnapshot(t, []domain.RawRecord{rawWork(1, 5), rawWork(2, 5)})
	newer := writeSnapshot(t, []domain.RawRecord{rawWork(2, 40), rawWork(3, 1)})

	require.Equal(t, pipeline.StateDone, p.Ingest(ctx, snapshot.NewFileSource(older)).State)
	require.Equal(t, pipeline.StateDone, p.Ingest(ctx, snapshot.NewFileSource(newer)).State)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	w2, err := repo.GetByExternalID(ctx, "W2")
	require.NoError(t, err)
	assert.Equal(t, 40, w2.CitedByCount)

	w1, err := repo.GetByExternalID(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, 5, w1.CitedByCount)
}

func TestLoad_PoisonRowIsolated(t *testing.T) {
	cleanPapers(t)
	ctx := context.Background()
	repo := repository.NewPgPaperRepository(testDB, "papers")
	p, _ := newPipeline(t, 100)

	records := make([]domain.RawRecord, 0, 150)
	for i := 1; i <= 150; i++ {
		cited := 3
		if i == 37 {
			cited = -1 // rejected by the cited_by_count CHECK constraint
		}
		records = append(records, rawWork(i, cited))
	}

	result := p.Ingest(ctx, snapshot.NewFileSource(writeSnapshot(t, records)))

	require.Equal(t, pipeline.StateDone, result.State, "%v", result.Err)
	assert.Equal(t, 0, result.ExitCode())
	assert.Equal(t, int64(149), result.Written)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "W37", result.Failures[0].ExternalID)
	assert.Equal(t, "check_violation", result.Failures[0].Reason())

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(149), count)

	_, err = repo.GetByExternalID(ctx, "W37")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestValidate_DetectsOutOfRangePercentile(t *testing.T) {
	cleanPapers(t)
	ctx := context.Background()

	_, err := testDB.Exec(ctx, `INSERT INTO papers (openalex_id, title, citation_percentile) VALUES ('W1', 'bad', 1.5)`)
	require.NoError(t, err)

	report, err := quality.NewValidator(testDB, "papers", zerolog.Nop(), nil).Validate(ctx)
	require.NoError(t, err)
	assert.False(t, report.Passed())

	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "citation_percentile_out_of_range", failures[0].Name)
	assert.Equal(t, int64(1), failures[0].ViolationCount)
}

func TestValidate_MissingTable(t *testing.T) {
	ctx := context.Background()

	report, err := quality.NewValidator(testDB, "papers_missing", zerolog.Nop(), nil).Validate(ctx)
	require.NoError(t, err)
	assert.False(t, report.TableExists)
	assert.False(t, report.Passed())
	assert.Equal(t, len(quality.Checks), report.Counts()[quality.StatusError])
}

func TestSnapshotRoundTrip(t *testing.T) {
	records := []domain.RawRecord{rawWork(1, 1), rawWork(2, 2)}
	path := writeSnapshot(t, records)

	assert.Equal(t, "ai_papers_", filepath.Base(path)[:10])
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"source": "OpenAlex API"`)

	file, err := snapshot.Load(path)
	require.NoError(t, err)
	require.Len(t, file.Papers, 2)
	assert.Equal(t, "https://openalex.org/W1", file.Papers[0].ID())
}
