package domain

import (
	"encoding/json"
	"time"
)

// Event type constants for pipeline run events.
const (
	EventTypeRunCompleted = "paper_etl.run.completed"
	EventTypeRunAborted   = "paper_etl.run.aborted"
)

// RunSummary describes the outcome of one pipeline run. It is logged at the end
// of every run and published as the payload of a run event.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	Source       string    `json:"source"`
	State        string    `json:"state"`
	ExitCode     int       `json:"exit_code"`
	Fetched      int       `json:"fetched"`
	Skipped      int       `json:"skipped"`
	Written      int64     `json:"written"`
	FailedRows   int       `json:"failed_rows"`
	FailedIDs    []string  `json:"failed_ids,omitempty"`
	Validated    bool      `json:"validated"`
	ChecksFailed []string  `json:"checks_failed,omitempty"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// RunEvent is the envelope published for a finished run.
type RunEvent struct {
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewRunEvent wraps a summary in an event envelope. The event type is derived
// from the summary's final state.
func NewRunEvent(summary RunSummary) (*RunEvent, error) {
	payload, err := json.Marshal(summary)
	if err != nil {
		return nil, err
	}

	eventType := EventTypeRunCompleted
	if summary.State == "ABORTED" {
		eventType = EventTypeRunAborted
	}

	return &RunEvent{
		EventType:  eventType,
		OccurredAt: summary.FinishedAt,
		Payload:    payload,
	}, nil
}
