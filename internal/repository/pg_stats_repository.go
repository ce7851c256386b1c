package repository

import (
	"context"
	"fmt"
)

// Summary is the headline block of the dashboard.
type Summary struct {
	TotalPapers       int64 `json:"total_papers"`
	DistinctFields    int64 `json:"distinct_fields"`
	DistinctSubfields int64 `json:"distinct_subfields"`
	MinYear           *int  `json:"min_year"`
	MaxYear           *int  `json:"max_year"`
}

// YearCount is the number of papers published in one year.
type YearCount struct {
	Year  int   `json:"year"`
	Count int64 `json:"count"`
}

// NameCount is the number of papers carrying one classification value.
type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// OpenAccessCount is the share of papers with one oa_status.
type OpenAccessCount struct {
	Status     string  `json:"status"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// OpenAccessStats groups the per-status breakdown with the overall OA share.
type OpenAccessStats struct {
	ByStatus       []OpenAccessCount `json:"by_status"`
	OpenAccessRate float64           `json:"open_access_rate"`
}

// CitationStats summarizes cited_by_count.
type CitationStats struct {
	TotalPapers       int64   `json:"total_papers"`
	AvgCitations      float64 `json:"avg_citations"`
	MaxCitations      int64   `json:"max_citations"`
	MedianCitations   float64 `json:"median_citations"`
	Top10PercentCount int64   `json:"top_10_percent_count"`
	Top1PercentCount  int64   `json:"top_1_percent_count"`
}

// CollaborationStats summarizes the countries and institutions counters.
type CollaborationStats struct {
	AvgCountries         float64 `json:"avg_countries"`
	AvgInstitutions      float64 `json:"avg_institutions"`
	MaxCountries         int64   `json:"max_countries"`
	MaxInstitutions      int64   `json:"max_institutions"`
	InternationalPercent float64 `json:"international_percent"`
}

// FWCIStats summarizes non-null field-weighted citation impact values.
type FWCIStats struct {
	Count  int64    `json:"count"`
	Avg    *float64 `json:"avg"`
	Median *float64 `json:"median"`
	Max    *float64 `json:"max"`
}

// StatsRepository serves read-only aggregates over the papers table.
type StatsRepository interface {
	Summary(ctx context.Context) (*Summary, error)
	PapersByYear(ctx context.Context) ([]YearCount, error)
	PapersByField(ctx context.Context, limit int) ([]NameCount, error)
	PapersBySubfield(ctx context.Context, limit int) ([]NameCount, error)
	OpenAccess(ctx context.Context) (*OpenAccessStats, error)
	Citations(ctx context.Context) (*CitationStats, error)
	Collaboration(ctx context.Context) (*CollaborationStats, error)
	FWCI(ctx context.Context) (*FWCIStats, error)
}

// Compile-time interface verification.
var _ StatsRepository = (*PgStatsRepository)(nil)

// PgStatsRepository is a PostgreSQL implementation of StatsRepository.
type PgStatsRepository struct {
	db    DBTX
	table string // quoted
}

// NewPgStatsRepository creates a stats repository over table.
func NewPgStatsRepository(db DBTX, table string) *PgStatsRepository {
	return &PgStatsRepository{db: db, table: quoteTable(table)}
}

// Summary returns totals and the publication year range.
func (r *PgStatsRepository) Summary(ctx context.Context) (*Summary, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*),
			COUNT(DISTINCT field_name),
			COUNT(DISTINCT subfield_name),
			MIN(publication_year),
			MAX(publication_year)
		FROM %s`, r.table)

	var s Summary
	if err := r.db.QueryRow(ctx, query).Scan(
		&s.TotalPapers, &s.DistinctFields, &s.DistinctSubfields, &s.MinYear, &s.MaxYear,
	); err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}
	return &s, nil
}

// PapersByYear returns paper counts per publication year, oldest first.
func (r *PgStatsRepository) PapersByYear(ctx context.Context) ([]YearCount, error) {
	query := fmt.Sprintf(`
		SELECT publication_year, COUNT(*)
		FROM %s
		WHERE publication_year IS NOT NULL
		GROUP BY publication_year
		ORDER BY publication_year`, r.table)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query papers by year: %w", err)
	}
	defer rows.Close()

	out := []YearCount{}
	for rows.Next() {
		var yc YearCount
		if err := rows.Scan(&yc.Year, &yc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan year count: %w", err)
		}
		out = append(out, yc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating year counts: %w", err)
	}
	return out, nil
}

// PapersByField returns the most common field names.
func (r *PgStatsRepository) PapersByField(ctx context.Context, limit int) ([]NameCount, error) {
	return r.countBy(ctx, "field_name", limit)
}

// PapersBySubfield returns the most common subfield names.
func (r *PgStatsRepository) PapersBySubfield(ctx context.Context, limit int) ([]NameCount, error) {
	return r.countBy(ctx, "subfield_name", limit)
}

// countBy groups by one of a fixed set of classification columns.
func (r *PgStatsRepository) countBy(ctx context.Context, column string, limit int) ([]NameCount, error) {
	query := fmt.Sprintf(`
		SELECT %[1]s, COUNT(*) AS count
		FROM %[2]s
		WHERE %[1]s IS NOT NULL
		GROUP BY %[1]s
		ORDER BY count DESC, %[1]s
		LIMIT $1`, column, r.table)

	rows, err := r.db.Query(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query papers by %s: %w", column, err)
	}
	defer rows.Close()

	out := []NameCount{}
	for rows.Next() {
		var nc NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		out = append(out, nc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s counts: %w", column, err)
	}
	return out, nil
}

// OpenAccess returns the oa_status breakdown and the share of open access papers.
func (r *PgStatsRepository) OpenAccess(ctx context.Context) (*OpenAccessStats, error) {
	query := fmt.Sprintf(`
		SELECT oa_status,
			COUNT(*) AS count,
			ROUND(100.0 * COUNT(*) / SUM(COUNT(*)) OVER (), 2)::float8
		FROM %s
		WHERE oa_status IS NOT NULL
		GROUP BY oa_status
		ORDER BY count DESC, oa_status`, r.table)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query open access breakdown: %w", err)
	}
	defer rows.Close()

	stats := &OpenAccessStats{ByStatus: []OpenAccessCount{}}
	for rows.Next() {
		var c OpenAccessCount
		if err := rows.Scan(&c.Status, &c.Count, &c.Percentage); err != nil {
			return nil, fmt.Errorf("failed to scan open access count: %w", err)
		}
		stats.ByStatus = append(stats.ByStatus, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating open access counts: %w", err)
	}

	rateQuery := fmt.Sprintf(`
		SELECT COALESCE(ROUND(100.0 * COUNT(*) FILTER (WHERE is_open_access) / NULLIF(COUNT(*), 0), 2), 0)::float8
		FROM %s`, r.table)
	if err := r.db.QueryRow(ctx, rateQuery).Scan(&stats.OpenAccessRate); err != nil {
		return nil, fmt.Errorf("failed to query open access rate: %w", err)
	}
	return stats, nil
}

// Citations returns citation count statistics.
func (r *PgStatsRepository) Citations(ctx context.Context) (*CitationStats, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*),
			COALESCE(AVG(cited_by_count), 0)::float8,
			COALESCE(MAX(cited_by_count), 0),
			COALESCE(PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY cited_by_count), 0)::float8,
			COUNT(*) FILTER (WHERE is_top_10_percent),
			COUNT(*) FILTER (WHERE is_top_1_percent)
		FROM %s
		WHERE cited_by_count IS NOT NULL`, r.table)

	var s CitationStats
	if err := r.db.QueryRow(ctx, query).Scan(
		&s.TotalPapers, &s.AvgCitations, &s.MaxCitations, &s.MedianCitations,
		&s.Top10PercentCount, &s.Top1PercentCount,
	); err != nil {
		return nil, fmt.Errorf("failed to query citation stats: %w", err)
	}
	return &s, nil
}

// Collaboration returns averages and maxima of the collaboration counters and
// the percentage of papers with authors from more than one country.
func (r *PgStatsRepository) Collaboration(ctx context.Context) (*CollaborationStats, error) {
	query := fmt.Sprintf(`
		SELECT COALESCE(AVG(countries_count), 0)::float8,
			COALESCE(AVG(institutions_count), 0)::float8,
			COALESCE(MAX(countries_count), 0),
			COALESCE(MAX(institutions_count), 0),
			COALESCE(ROUND(100.0 * COUNT(*) FILTER (WHERE countries_count > 1) / NULLIF(COUNT(*), 0), 2), 0)::float8
		FROM %s
		WHERE countries_count IS NOT NULL OR institutions_count IS NOT NULL`, r.table)

	var s CollaborationStats
	if err := r.db.QueryRow(ctx, query).Scan(
		&s.AvgCountries, &s.AvgInstitutions, &s.MaxCountries, &s.MaxInstitutions, &s.InternationalPercent,
	); err != nil {
		return nil, fmt.Errorf("failed to query collaboration stats: %w", err)
	}
	return &s, nil
}

// FWCI returns statistics over non-null fwci values. Avg, Median and Max are
// nil when no paper carries an fwci.
func (r *PgStatsRepository) FWCI(ctx context.Context) (*FWCIStats, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*),
			AVG(fwci)::float8,
			(PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY fwci))::float8,
			MAX(fwci)::float8
		FROM %s
		WHERE fwci IS NOT NULL`, r.table)

	var s FWCIStats
	if err := r.db.QueryRow(ctx, query).Scan(&s.Count, &s.Avg, &s.Median, &s.Max); err != nil {
		return nil, fmt.Errorf("failed to query fwci stats: %w", err)
	}
	return &s, nil
}
