package quality

import (
	"time"

	"github.com/rs/zerolog"
)

// Status is the outcome of one check.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
	// StatusError means the check's query could not run.
	StatusError Status = "error"
	// StatusInfo means an informational check found violations.
	StatusInfo Status = "info"
)

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Category       Category `json:"category"`
	Informational  bool     `json:"informational"`
	Status         Status   `json:"status"`
	ViolationCount int64    `json:"violation_count"`
	Err            error    `json:"-"`
}

// Report aggregates the results of one validation.
type Report struct {
	Table       string        `json:"table"`
	TableExists bool          `json:"table_exists"`
	TotalRows   int64         `json:"total_rows"`
	Checks      []CheckResult `json:"checks"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// Passed reports whether no non-informational check failed and no check errored.
func (r *Report) Passed() bool {
	if r == nil {
		return false
	}
	for _, c := range r.Checks {
		if c.Status == StatusError {
			return false
		}
		if c.Status == StatusFailed && !c.Informational {
			return false
		}
	}
	return true
}

// ExitCode returns 0 when the report passed and 1 otherwise.
func (r *Report) ExitCode() int {
	if r.Passed() {
		return 0
	}
	return 1
}

// Counts returns the number of checks in each status.
func (r *Report) Counts() map[Status]int {
	counts := map[Status]int{StatusPassed: 0, StatusFailed: 0, StatusError: 0, StatusInfo: 0}
	for _, c := range r.Checks {
		counts[c.Status]++
	}
	return counts
}

// Failures returns the checks that count against the report.
func (r *Report) Failures() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if c.Status == StatusError || (c.Status == StatusFailed && !c.Informational) {
			out = append(out, c)
		}
	}
	return out
}

// Log writes one line per check and a summary line.
func (r *Report) Log(logger zerolog.Logger) {
	for _, c := range r.Checks {
		var ev *zerolog.Event
		switch c.Status {
		case StatusPassed, StatusInfo:
			ev = logger.Info()
		case StatusFailed:
			ev = logger.Warn()
		default:
			ev = logger.Error().Err(c.Err)
		}
		ev.Str("check", c.Name).
			Str("category", string(c.Category)).
			Str("status", string(c.Status)).
			Int64("violations", c.ViolationCount).
			Bool("informational", c.Informational).
			Msg(c.Description)
	}

	counts := r.Counts()
	ev := logger.Info()
	if !r.Passed() {
		ev = logger.Error()
	}
	ev.Str("table", r.Table).
		Bool("table_exists", r.TableExists).
		Int64("total_rows", r.TotalRows).
		Int("checks", len(r.Checks)).
		Int("passed", counts[StatusPassed]).
		Int("failed", counts[StatusFailed]).
		Int("errored", counts[StatusError]).
		Int("info", counts[StatusInfo]).
		Dur("duration", r.Duration).
		Bool("ok", r.Passed()).
		Msg("data quality validation finished")
}
