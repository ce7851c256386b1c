package domain

import (
	"strings"
	"time"
)

// URL prefixes OpenAlex puts in front of work ids and DOIs.
const (
	OpenAlexIDPrefix = "https://openalex.org/"
	DOIPrefix        = "https://doi.org/"
)

// Paper is the flattened, relational form of one OpenAlex work.
// A Paper is built once by the normalizer and not mutated afterwards.
type Paper struct {
	// ExternalID is the OpenAlex work id without its URL prefix (e.g. "W2741809807").
	ExternalID string

	DOI             *string
	Title           string
	PaperType       *string
	PublicationDate *time.Time
	PublicationYear *int

	// Classification, all read from the work's primary_topic.
	PrimaryTopicName  *string
	PrimaryTopicScore *float64
	SubfieldName      *string
	FieldName         *string
	DomainName        *string

	IsOpenAccess bool
	OAStatus     *string

	CitedByCount          int
	CitationPercentile    *float64
	IsTop1Percent         bool
	IsTop10Percent        bool
	CitationPercentileMin *int
	CitationPercentileMax *int

	// FWCI is reserved for a source that is not wired up; ingestion leaves it nil.
	FWCI *float64

	CountriesCount    int
	InstitutionsCount int

	// CreatedAt and UpdatedAt are only populated when a paper is read back from the store.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StripOpenAlexIDPrefix removes the https://openalex.org/ prefix from an id.
func StripOpenAlexIDPrefix(id string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(id), OpenAlexIDPrefix))
}

// StripDOIPrefix removes the https://doi.org/ prefix from a DOI.
func StripDOIPrefix(doi string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(doi), DOIPrefix))
}
