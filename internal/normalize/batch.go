package normalize

import (
	"errors"
	"fmt"

	"github.com/helixir/paper-etl/internal/domain"
)

// Rejection records a raw record that Normalize refused.
type Rejection struct {
	// Index is the record's position in the input slice.
	Index int
	Err   *RejectionError
}

// Batch is the outcome of normalizing a slice of raw records.
type Batch struct {
	// Papers are the accepted records in input order.
	Papers     []domain.Paper
	Rejections []Rejection
}

// Skipped returns the number of rejected records.
func (b Batch) Skipped() int {
	return len(b.Rejections)
}

// NormalizeAll normalizes every record. A rejected record never stops the
// batch; it is recorded and the next record is processed.
func NormalizeAll(records []domain.RawRecord) Batch {
	out := Batch{Papers: make([]domain.Paper, 0, len(records))}
	for i, raw := range records {
		paper, err := normalizeSafely(raw)
		if err != nil {
			out.Rejections = append(out.Rejections, Rejection{Index: i, Err: err})
			continue
		}
		out.Papers = append(out.Papers, *paper)
	}
	return out
}

// normalizeSafely converts any error, or a panic from an unexpected value
// shape, into a RejectionError.
func normalizeSafely(raw domain.RawRecord) (paper *domain.Paper, rej *RejectionError) {
	defer func() {
		if p := recover(); p != nil {
			paper = nil
			rej = &RejectionError{ExternalID: raw.ID(), Reason: &panicError{value: p}}
		}
	}()

	paper, err := Normalize(raw)
	if err != nil {
		var r *RejectionError
		if errors.As(err, &r) {
			return nil, r
		}
		return nil, &RejectionError{Reason: err}
	}
	return paper, nil
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic while normalizing: %v", e.value)
}
