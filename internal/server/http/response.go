package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/helixir/paper-etl/internal/domain"
)

type paperResponse struct {
	OpenAlexID            string    `json:"openalex_id"`
	DOI                   *string   `json:"doi,omitempty"`
	Title                 string    `json:"title"`
	PaperType             *string   `json:"paper_type,omitempty"`
	PublicationDate       string    `json:"publication_date,omitempty"`
	PublicationYear       *int      `json:"publication_year,omitempty"`
	PrimaryTopicName      *string   `json:"primary_topic_name,omitempty"`
	PrimaryTopicScore     *float64  `json:"primary_topic_score,omitempty"`
	SubfieldName          *string   `json:"subfield_name,omitempty"`
	FieldName             *string   `json:"field_name,omitempty"`
	DomainName            *string   `json:"domain_name,omitempty"`
	IsOpenAccess          bool      `json:"is_open_access"`
	OAStatus              *string   `json:"oa_status,omitempty"`
	CitedByCount          int       `json:"cited_by_count"`
	CitationPercentile    *float64  `json:"citation_percentile,omitempty"`
	IsTop1Percent         bool      `json:"is_top_1_percent"`
	IsTop10Percent        bool      `json:"is_top_10_percent"`
	CitationPercentileMin *int      `json:"citation_percentile_min,omitempty"`
	CitationPercentileMax *int      `json:"citation_percentile_max,omitempty"`
	FWCI                  *float64  `json:"fwci,omitempty"`
	CountriesCount        int       `json:"countries_count"`
	InstitutionsCount     int       `json:"institutions_count"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func domainPaperToResponse(p *domain.Paper) paperResponse {
	resp := paperResponse{
		OpenAlexID:            p.ExternalID,
		DOI:                   p.DOI,
		Title:                 p.Title,
		PaperType:             p.PaperType,
		PublicationYear:       p.PublicationYear,
		PrimaryTopicName:      p.PrimaryTopicName,
		PrimaryTopicScore:     p.PrimaryTopicScore,
		SubfieldName:          p.SubfieldName,
		FieldName:             p.FieldName,
		DomainName:            p.DomainName,
		IsOpenAccess:          p.IsOpenAccess,
		OAStatus:              p.OAStatus,
		CitedByCount:          p.CitedByCount,
		CitationPercentile:    p.CitationPercentile,
		IsTop1Percent:         p.IsTop1Percent,
		IsTop10Percent:        p.IsTop10Percent,
		CitationPercentileMin: p.CitationPercentileMin,
		CitationPercentileMax: p.CitationPercentileMax,
		FWCI:                  p.FWCI,
		CountriesCount:        p.CountriesCount,
		InstitutionsCount:     p.InstitutionsCount,
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
	}
	if p.PublicationDate != nil {
		resp.PublicationDate = p.PublicationDate.Format(time.DateOnly)
	}
	return resp
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent, nothing useful to do with an encode error.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
