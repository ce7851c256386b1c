package pipeline

import (
	"time"

	"github.com/helixir/paper-etl/internal/domain"
	"github.com/helixir/paper-etl/internal/ingest"
	"github.com/helixir/paper-etl/internal/normalize"
	"github.com/helixir/paper-etl/internal/quality"
)

// RunResult is the outcome of one run.
type RunResult struct {
	RunID  string
	Source string
	State  State
	// Trail lists every state the run entered, in order.
	Trail []State

	Fetched    int
	Skipped    int
	Rejections []normalize.Rejection
	Written    int64
	Failures   []ingest.RowFailure
	Report     *quality.Report

	// SnapshotLocation is where fetched records were archived, if anywhere.
	SnapshotLocation string

	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r *RunResult) transition(next State) {
	if !r.State.CanTransition(next) {
		return
	}
	r.State = next
	r.Trail = append(r.Trail, next)
}

func (r *RunResult) abort(err error) {
	r.Err = err
	r.transition(StateAborted)
}

// ExitCode maps the run to a process exit code: 1 for an aborted run or a
// failed validation report, 0 otherwise. Row failures alone do not fail a run.
func (r *RunResult) ExitCode() int {
	if r.State == StateAborted || r.Err != nil {
		return 1
	}
	if r.Report != nil {
		return r.Report.ExitCode()
	}
	return 0
}

// Summary converts the result to the published event payload.
func (r *RunResult) Summary() domain.RunSummary {
	s := domain.RunSummary{
		RunID:      r.RunID,
		Source:     r.Source,
		State:      string(r.State),
		ExitCode:   r.ExitCode(),
		Fetched:    r.Fetched,
		Skipped:    r.Skipped,
		Written:    r.Written,
		FailedRows: len(r.Failures),
		Validated:  r.Report != nil,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	for _, f := range r.Failures {
		s.FailedIDs = append(s.FailedIDs, f.ExternalID)
	}
	if r.Report != nil {
		for _, c := range r.Report.Failures() {
			s.ChecksFailed = append(s.ChecksFailed, c.Name)
		}
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}
