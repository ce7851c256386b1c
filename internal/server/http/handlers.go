package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/paper-etl/internal/domain"
	"github.com/helixir/paper-etl/internal/repository"
)

const defaultTopLimit = 10

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.stats.Summary(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) getPapersByYear(w http.ResponseWriter, r *http.Request) {
	years, err := s.stats.PapersByYear(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[repository.YearCount]{Items: years, Count: len(years)})
}

func (s *Server) getPapersByField(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, 0)
	if !ok {
		return
	}
	fields, err := s.stats.PapersByField(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[repository.NameCount]{Items: fields, Count: len(fields)})
}

func (s *Server) getPapersBySubfield(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, 0)
	if !ok {
		return
	}
	subfields, err := s.stats.PapersBySubfield(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[repository.NameCount]{Items: subfields, Count: len(subfields)})
}

func (s *Server) getOpenAccess(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.OpenAccess(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getCitations(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Citations(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getCollaboration(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Collaboration(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getFWCI(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.FWCI(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// getTopCited handles GET /papers/top?limit=N.
func (s *Server) getTopCited(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultTopLimit)
	if !ok {
		return
	}
	papers, err := s.papers.TopCited(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]paperResponse, len(papers))
	for i, p := range papers {
		out[i] = domainPaperToResponse(p)
	}
	writeJSON(w, http.StatusOK, listResponse[paperResponse]{Items: out, Count: len(out)})
}

// getPaper handles GET /papers/{openalexID}. A full OpenAlex URL is accepted
// as well as a bare id.
func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	id := domain.StripOpenAlexIDPrefix(chi.URLParam(r, "openalexID"))
	paper, err := s.papers.GetByExternalID(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domainPaperToResponse(paper))
}

// fail logs unexpected errors and writes the mapped response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeDomainError(w, err)
}

// parseLimit reads the optional limit query parameter. A missing value
// yields def; the repository applies its own bounds.
func parseLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return limit, true
}
