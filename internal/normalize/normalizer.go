// Package normalize flattens raw OpenAlex work objects into domain.Paper values.
//
// Normalize is a pure function: it never touches the store and never panics on
// malformed input. A record without a usable id, or with a field of the wrong
// JSON type, is reported as a *RejectionError so the caller can count it as a
// skip and keep going.
package normalize

import (
	"errors"
	"fmt"
	"time"

	"github.com/helixir/paper-etl/internal/domain"
)

// publicationDateLayout is the date format OpenAlex uses for publication_date.
const publicationDateLayout = "2006-01-02"

// RejectionError explains why a raw record produced no paper.
type RejectionError struct {
	// ExternalID is the stripped id when one could be read, otherwise "".
	ExternalID string
	Reason     error
}

// Error implements the error interface.
func (e *RejectionError) Error() string {
	if e.ExternalID == "" {
		return fmt.Sprintf("record rejected: %v", e.Reason)
	}
	return fmt.Sprintf("record %s rejected: %v", e.ExternalID, e.Reason)
}

// Unwrap returns the rejection reason.
func (e *RejectionError) Unwrap() error {
	return e.Reason
}

// Normalize maps one raw record to a Paper.
func Normalize(raw domain.RawRecord) (*domain.Paper, error) {
	if !raw.IsObject() {
		return nil, &RejectionError{Reason: fmt.Errorf("%w: record is not a JSON object", domain.ErrMalformedRecord)}
	}

	id, _, err := raw.Get("id").String()
	if err != nil {
		return nil, &RejectionError{Reason: err}
	}
	externalID := domain.StripOpenAlexIDPrefix(id)
	if externalID == "" {
		return nil, &RejectionError{Reason: domain.ErrMissingExternalID}
	}

	var r reader
	p := &domain.Paper{ExternalID: externalID}

	if doi := r.str(raw.Get("doi")); doi != nil {
		if stripped := domain.StripDOIPrefix(*doi); stripped != "" {
			p.DOI = &stripped
		}
	}

	if title := r.str(raw.Get("title")); title != nil && *title != "" {
		p.Title = *title
	} else if name := r.str(raw.Get("display_name")); name != nil {
		p.Title = *name
	}

	p.PaperType = r.str(raw.Get("type"))
	p.PublicationDate = r.date(raw.Get("publication_date"))
	p.PublicationYear = r.integer(raw.Get("publication_year"))

	if topic := r.object(raw.Get("primary_topic")); topic != nil {
		p.PrimaryTopicName = r.str(topic.Get("display_name"))
		p.PrimaryTopicScore = r.float(topic.Get("score"))
		p.SubfieldName = r.displayName(topic.Get("subfield"))
		p.FieldName = r.displayName(topic.Get("field"))
		p.DomainName = r.displayName(topic.Get("domain"))
	}

	if oa := r.object(raw.Get("open_access")); oa != nil {
		p.IsOpenAccess = r.boolOrFalse(oa.Get("is_oa"))
		p.OAStatus = r.str(oa.Get("oa_status"))
	}

	p.CitedByCount = r.count(raw.Get("cited_by_count"))

	if pct := r.object(raw.Get("citation_normalized_percentile")); pct != nil {
		p.CitationPercentile = r.float(pct.Get("value"))
		p.IsTop1Percent = r.boolOrFalse(pct.Get("is_in_top_1_percent"))
		p.IsTop10Percent = r.boolOrFalse(pct.Get("is_in_top_10_percent"))
	}

	if year := r.object(raw.Get("cited_by_percentile_year")); year != nil {
		p.CitationPercentileMin = r.integer(year.Get("min"))
		p.CitationPercentileMax = r.integer(year.Get("max"))
	}

	p.CountriesCount = r.count(raw.Get("countries_distinct_count"))
	p.InstitutionsCount = r.count(raw.Get("institutions_distinct_count"))

	if r.err != nil {
		return nil, &RejectionError{ExternalID: externalID, Reason: r.err}
	}
	return p, nil
}

// reader collects the first type error seen while extracting fields so that
// Normalize reads top to bottom without an error check after every field.
type reader struct {
	err error
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) str(v domain.Value) *string {
	s, ok, err := v.String()
	if err != nil {
		r.fail(err)
		return nil
	}
	if !ok {
		return nil
	}
	return &s
}

func (r *reader) integer(v domain.Value) *int {
	n, ok, err := v.Int()
	if err != nil {
		r.fail(err)
		return nil
	}
	if !ok {
		return nil
	}
	i := int(n)
	return &i
}

// count reads a counter that defaults to 0 when absent or null.
func (r *reader) count(v domain.Value) int {
	if n := r.integer(v); n != nil {
		return *n
	}
	return 0
}

func (r *reader) float(v domain.Value) *float64 {
	f, ok, err := v.Float()
	if err != nil {
		r.fail(err)
		return nil
	}
	if !ok {
		return nil
	}
	return &f
}

func (r *reader) boolOrFalse(v domain.Value) bool {
	b, _, err := v.Bool()
	if err != nil {
		r.fail(err)
		return false
	}
	return b
}

func (r *reader) object(v domain.Value) *domain.Value {
	_, ok, err := v.Object()
	if err != nil {
		r.fail(err)
		return nil
	}
	if !ok {
		return nil
	}
	return &v
}

// displayName reads display_name from an optional nested object.
func (r *reader) displayName(v domain.Value) *string {
	if obj := r.object(v); obj != nil {
		return r.str(obj.Get("display_name"))
	}
	return nil
}

func (r *reader) date(v domain.Value) *time.Time {
	s := r.str(v)
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(publicationDateLayout, *s)
	if err != nil {
		r.fail(&domain.FieldTypeError{Path: v.Path(), Expected: "date (YYYY-MM-DD)", Got: fmt.Sprintf("%q", *s)})
		return nil
	}
	return &t
}

// IsRejection reports whether err came from Normalize rejecting a record.
func IsRejection(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej)
}
