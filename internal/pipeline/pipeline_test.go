package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-etl/internal/domain"
	"github.com/helixir/paper-etl/internal/ingest"
	"github.com/helixir/paper-etl/internal/papersources"
	"github.com/helixir/paper-etl/internal/quality"
	"github.com/helixir/paper-etl/internal/snapshot"
)

type fakeSource struct {
	name    string
	records []domain.RawRecord
	err     error
	params  papersources.FetchParams
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(_ context.Context, params papersources.FetchParams) ([]domain.RawRecord, error) {
	f.params = params
	return f.records, f.err
}

type fakeStore struct {
	pings   int
	err     error
	schemas int
	schErr  error
}

func (f *fakeStore) Ping(context.Context) error {
	f.pings++
	return f.err
}

func (f *fakeStore) EnsureSchema(context.Context) error {
	f.schemas++
	return f.schErr
}

type fakeWriter struct {
	got    []domain.Paper
	calls  int
	result *ingest.Result
	err    error
}

func (f *fakeWriter) Upsert(_ context.Context, papers []domain.Paper) (*ingest.Result, error) {
	f.calls++
	f.got = append(f.got, papers...)
	if f.result != nil {
		return f.result, f.err
	}
	return &ingest.Result{Written: int64(len(papers))}, f.err
}

type fakeChecker struct {
	calls  int
	report *quality.Report
	err    error
}

func (f *fakeChecker) Validate(context.Context) (*quality.Report, error) {
	f.calls++
	return f.report, f.err
}

type fakeArchiver struct {
	calls int
	err   error
}

func (f *fakeArchiver) Archive(context.Context, []domain.RawRecord, int, time.Time) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "/tmp/ai_papers.json", nil
}

type fakePublisher struct {
	mu        sync.Mutex
	summaries []domain.RunSummary
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, s domain.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, s)
	return f.err
}

func passingReport() *quality.Report {
	return &quality.Report{
		Table:       "papers",
		TableExists: true,
		TotalRows:   2,
		Checks: []quality.CheckResult{
			{Name: "required_fields", Status: quality.StatusPassed},
			{Name: "duplicate_doi", Informational: true, Status: quality.StatusInfo, ViolationCount: 1},
		},
	}
}

func failingReport() *quality.Report {
	r := passingReport()
	r.Checks = append(r.Checks, quality.CheckResult{Name: "valid_percentiles", Status: quality.StatusFailed, ViolationCount: 3})
	return r
}

func records(ids ...string) []domain.RawRecord {
	out := make([]domain.RawRecord, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			out = append(out, domain.RawRecord{"title": "no id"})
			continue
		}
		out = append(out, domain.RawRecord{"id": "https://openalex.org/" + id, "title": "Paper " + id})
	}
	return out
}

type harness struct {
	source    *fakeSource
	store     *fakeStore
	writer    *fakeWriter
	checker   *fakeChecker
	archiver  *fakeArchiver
	publisher *fakePublisher
}

func newHarness(recs []domain.RawRecord) *harness {
	return &harness{
		source:    &fakeSource{name: "openalex", records: recs},
		store:     &fakeStore{},
		writer:    &fakeWriter{},
		checker:   &fakeChecker{report: passingReport()},
		archiver:  &fakeArchiver{},
		publisher: &fakePublisher{},
	}
}

func (h *harness) pipeline(t *testing.T, opts Options) *Pipeline {
	t.Helper()
	p, err := New(Deps{
		Source:    h.source,
		Store:     h.store,
		Schema:    h.store,
		Writer:    h.writer,
		Checker:   h.checker,
		Snapshots: h.archiver,
		Events:    h.publisher,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) },
	}, opts)
	require.NoError(t, err)
	return p
}

var defaultOpts = Options{Days: 3, BatchSize: 100}

func TestRun_HappyPath(t *testing.T) {
	h := newHarness(records("W1", "W2", ""))

	res := h.pipeline(t, defaultOpts).Run(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []State{StateFetching, StateNormalizing, StateUpserting, StateValidating, StateDone}, res.Trail)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, int64(2), res.Written)
	assert.Equal(t, 0, res.ExitCode())
	assert.Equal(t, "/tmp/ai_papers.json", res.SnapshotLocation)
	assert.NotEmpty(t, res.RunID)

	assert.Equal(t, time.Date(2025, 6, 7, 12, 0, 0, 0, time.UTC), h.source.params.From)
	assert.Equal(t, 1, h.store.pings)
	assert.Equal(t, 1, h.store.schemas)
	require.Len(t, h.writer.got, 2)
	assert.Equal(t, "W1", h.writer.got[0].ExternalID)
	assert.Equal(t, 1, h.checker.calls)

	require.Len(t, h.publisher.summaries, 1)
	s := h.publisher.summaries[0]
	assert.Equal(t, "DONE", s.State)
	assert.True(t, s.Validated)
	assert.Equal(t, res.RunID, s.RunID)
	assert.Empty(t, s.ChecksFailed)
}

func TestRun_ZeroRecordsIsSuccess(t *testing.T) {
	h := newHarness(nil)

	res := h.pipeline(t, defaultOpts).Run(context.Background())

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []State{StateFetching, StateDone}, res.Trail)
	assert.Equal(t, 0, res.ExitCode())
	assert.Zero(t, h.store.pings)
	assert.Zero(t, h.writer.calls)
	assert.Zero(t, h.checker.calls)
	assert.Zero(t, h.archiver.calls)
	assert.Len(t, h.publisher.summaries, 1)
}

func TestRun_FetchErrorAborts(t *testing.T) {
	h := newHarness(nil)
	h.source.err = errors.New("giving up after 3 attempts")

	res := h.pipeline(t, defaultOpts).Run(context.Background())

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, 1, res.ExitCode())
	assert.Contains(t, res.Err.Error(), "fetching records")
	assert.Zero(t, h.writer.calls)

	require.Len(t, h.publisher.summaries, 1)
	assert.Equal(t, "ABORTED", h.publisher.summaries[0].State)
	assert.NotEmpty(t, h.publisher.summaries[0].Error)
}

func TestRun_StoreUnavailableAborts(t *testing.T) {
	h := newHarness(records("W1"))
	h.store.err = errors.New("connection refused")

	res := h.pipeline(t, defaultOpts).Run(context.Background())

	assert.Equal(t, StateAborted, res.State)
	assert.True(t, errors.Is(res.Err, domain.ErrStoreUnavailable))
	assert.Equal(t, 1, res.ExitCode())
	assert.Zero(t, h.store.schemas)
	assert.Zero(t, h.writer.calls)
}

func TestRun_SchemaErrorAborts(t *testing.T) {
	h := newHarness(records("W1"))
	h.store.schErr = errors.New("permission denied")

	res := h.pipeline(t, defaultOpts).Run(context.Background())

	assert.Equal(t, StateAborted, res.State)
	assert.Contains(t, res.Err.Error(), "ensuring schema")
	assert.Zero(t, h.writer.calls)
}

func TestRun_RowFailuresDoNotFailRun(t *testing.T) {
	h := newHarness(records("W1", "W2"))
	h.writer.result = &ingest.Result{
		Written:  1,
		Failures: []ingest.RowFailure{{ExternalID: "W2", Err: errors.New("check constraint")}},
	}

	res := h.pipeline(t, defaultOpts).Run(context.Background())

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 0, res.ExitCode())
	assert.Len(t, res.Failures, 1)

	s := res.Summary()
	assert.Equal(t, 1, s.FailedRows)
	assert.Equal(t, []string{"W2"}, s.FailedIDs)
}

func TestRun_UpsertCancellationAborts(t *testing.T) {
	h := newHarness(records("W1", "W2"))
	h.writer.result = &ingest.Result{Written: 1}
	h.writer.err = context.Canceled

	res := h.pipeline(t, defaultOpts).Run(context.Background())

	assert.Equal(t, StateAborted, res.State)
	assert.True(t, errors.Is(res.Err, context.Canceled))
	assert.Equal(t, int64(1), res.Written)
	assert.Zero(t, h.checker.calls)
}

func TestRun_ValidationFailureExitsNonZero(t *testing.T) {
	h := newHarness(records("W1"))
	h.checker.report = failingReport()

	res := h.pipeline(t, defaultOpts).Run(context.Background())

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 1, res.ExitCode())
	assert.Equal(t, []string{"valid_percentiles"}, res.Summary().ChecksFailed)
}

func TestRun_ValidatorCancelledAborts(t *testing.T) {
	h := newHarness(records("W1"))
	h.checker.report = nil
	h.checker.err = context.DeadlineExceeded

	res := h.pipeline(t, defaultOpts).Run(context.Background())

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, 1, res.ExitCode())
}

func TestRun_SkipValidation(t *testing.T) {
	h := newHarness(records("W1"))
	h.checker.report = failingReport()

	res := h.pipeline(t, Options{Days: 1, BatchSize: 50, SkipValidation: true}).Run(context.Background())

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 0, res.ExitCode())
	assert.Zero(t, h.checker.calls)
	assert.Nil(t, res.Report)
	assert.NotContains(t, res.Trail, StateValidating)
}

func TestRun_SnapshotFailureContinues(t *testing.T) {
	h := newHarness(records("W1"))
	h.archiver.err = errors.New("disk full")

	res := h.pipeline(t, defaultOpts).Run(context.Background())

	assert.Equal(t, StateDone, res.State)
	assert.Empty(t, res.SnapshotLocation)
	assert.Equal(t, 1, h.writer.calls)
}

func TestRun_PublishFailureIsLogged(t *testing.T) {
	h := newHarness(records("W1"))
	h.publisher.err = errors.New("broker down")

	res := h.pipeline(t, defaultOpts).Run(context.Background())

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 0, res.ExitCode())
}

func TestIngest_SkipsSnapshotAndValidation(t *testing.T) {
	h := newHarness(nil)
	file := &fakeSource{name: "snapshot", records: records("W1", "W2")}

	res := h.pipeline(t, defaultOpts).Ingest(context.Background(), file)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, "snapshot", res.Source)
	assert.Equal(t, int64(2), res.Written)
	assert.Zero(t, h.archiver.calls)
	assert.Zero(t, h.checker.calls)
}

func TestIngest_SnapshotWithMalformedElements(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mixed.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"papers":[{"id":"https://openalex.org/W1","title":"ok"}, null, "garbage"]}`), 0o600))

	h := newHarness(nil)
	res := h.pipeline(t, defaultOpts).Ingest(context.Background(), snapshot.NewFileSource(path))

	assert.Equal(t, StateDone, res.State)
	assert.NoError(t, res.Err)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, int64(1), res.Written)
	require.Len(t, h.writer.got, 1)
	assert.Equal(t, "W1", h.writer.got[0].ExternalID)
	assert.Equal(t, 0, res.ExitCode())
}

func TestNew_Validation(t *testing.T) {
	h := newHarness(nil)
	base := Deps{Source: h.source, Store: h.store, Writer: h.writer, Checker: h.checker}

	tests := []struct {
		name string
		deps Deps
		opts Options
	}{
		{"zero days", base, Options{Days: 0, BatchSize: 100}},
		{"batch too large", base, Options{Days: 3, BatchSize: 2001}},
		{"batch zero", base, Options{Days: 3, BatchSize: 0}},
		{"missing source", Deps{Store: h.store, Writer: h.writer, Checker: h.checker}, defaultOpts},
		{"missing store", Deps{Source: h.source, Writer: h.writer, Checker: h.checker}, defaultOpts},
		{"missing writer", Deps{Source: h.source, Store: h.store, Checker: h.checker}, defaultOpts},
		{"missing checker", Deps{Source: h.source, Store: h.store, Writer: h.writer}, defaultOpts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.deps, tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		})
	}

	t.Run("checker optional when skipping validation", func(t *testing.T) {
		_, err := New(Deps{Source: h.source, Store: h.store, Writer: h.writer}, Options{Days: 3, BatchSize: 100, SkipValidation: true})
		assert.NoError(t, err)
	})
}

func TestState(t *testing.T) {
	assert.True(t, StateDone.IsTerminal())
	assert.True(t, StateAborted.IsTerminal())
	assert.False(t, StateUpserting.IsTerminal())

	assert.True(t, StateFetching.CanTransition(StateDone))
	assert.True(t, StateUpserting.CanTransition(StateAborted))
	assert.False(t, StateFetching.CanTransition(StateUpserting))
	assert.False(t, StateDone.CanTransition(StateAborted))
	assert.False(t, StateAborted.CanTransition(StateFetching))
}
