// Package papersources provides the HTTP plumbing shared by record sources.
//
// A record source returns raw, undecoded-beyond-JSON paper objects for a
// publication window. The OpenAlex client lives in the openalex subpackage;
// snapshot files are read by the snapshot package.
//
// Example usage:
//
//	source := openalex.New(cfg, logger, metrics)
//	records, err := source.Fetch(ctx, papersources.FetchParams{
//		From: time.Now().AddDate(0, 0, -3),
//	})
package papersources

import (
	"context"
	"time"

	"github.com/helixir/paper-etl/internal/domain"
)

// FetchParams selects the records a source returns.
type FetchParams struct {
	// From is the earliest publication date to include.
	From time.Time

	// Until is the latest publication date to include. Zero means no upper bound.
	Until time.Time
}

// DateFrom formats From as an OpenAlex filter date.
func (p FetchParams) DateFrom() string {
	return p.From.Format("2006-01-02")
}

// RecordSource fetches raw paper records.
type RecordSource interface {
	// Fetch returns every record in the window, deduplicated by id.
	// The context should be used for cancellation and deadline propagation.
	Fetch(ctx context.Context, params FetchParams) ([]domain.RawRecord, error)

	// Name returns a short identifier used in logs, metrics and run events.
	Name() string
}
