package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/paper-etl/internal/domain"
)

// Compile-time interface verification.
var _ PaperRepository = (*PgPaperRepository)(nil)

// paperColumns are the columns written by an upsert, in bind order.
var paperColumns = []string{
	"openalex_id",
	"doi",
	"title",
	"paper_type",
	"publication_date",
	"publication_year",
	"primary_topic_name",
	"primary_topic_score",
	"subfield_name",
	"field_name",
	"domain_name",
	"is_open_access",
	"oa_status",
	"cited_by_count",
	"citation_percentile",
	"is_top_1_percent",
	"is_top_10_percent",
	"citation_percentile_min",
	"citation_percentile_max",
	"fwci",
	"countries_count",
	"institutions_count",
}

// ColumnsPerRow is the number of bind parameters one paper uses in an upsert.
var ColumnsPerRow = len(paperColumns)

// MaxBindParameters is PostgreSQL's limit on parameters in one statement.
const MaxBindParameters = 65535

// MaxRowsPerStatement is the largest chunk UpsertMany can send in one statement.
var MaxRowsPerStatement = MaxBindParameters / ColumnsPerRow

// PgPaperRepository is a PostgreSQL implementation of PaperRepository.
type PgPaperRepository struct {
	db    DBTX
	table string // quoted
}

// NewPgPaperRepository creates a paper repository over table. An empty table
// name selects DefaultTable.
func NewPgPaperRepository(db DBTX, table string) *PgPaperRepository {
	return &PgPaperRepository{db: db, table: quoteTable(table)}
}

// UpsertMany writes papers in one INSERT ... ON CONFLICT statement.
func (r *PgPaperRepository) UpsertMany(ctx context.Context, papers []domain.Paper) (int64, error) {
	if len(papers) == 0 {
		return 0, nil
	}
	if len(papers) > MaxRowsPerStatement {
		return 0, domain.NewValidationError("papers",
			fmt.Sprintf("%d papers exceed the %d rows one statement can bind", len(papers), MaxRowsPerStatement))
	}

	args := make([]any, 0, len(papers)*ColumnsPerRow)
	tuples := make([]string, 0, len(papers))
	for i := range papers {
		p := &papers[i]
		if p.ExternalID == "" {
			return 0, domain.NewValidationError("openalex_id", fmt.Sprintf("paper at index %d has no external ID", i))
		}
		tuples = append(tuples, placeholderTuple(len(args)+1, ColumnsPerRow))
		args = append(args, paperArgs(p)...)
	}

	query := r.upsertSQL(strings.Join(tuples, ",\n\t\t\t"))

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert %d papers: %w", len(papers), err)
	}
	return tag.RowsAffected(), nil
}

// Upsert writes a single paper.
func (r *PgPaperRepository) Upsert(ctx context.Context, paper *domain.Paper) error {
	if paper == nil {
		return domain.NewValidationError("paper", "paper cannot be nil")
	}
	if paper.ExternalID == "" {
		return domain.NewValidationError("openalex_id", "external ID is required")
	}

	query := r.upsertSQL(placeholderTuple(1, ColumnsPerRow))
	if _, err := r.db.Exec(ctx, query, paperArgs(paper)...); err != nil {
		return fmt.Errorf("failed to upsert paper %s: %w", paper.ExternalID, err)
	}
	return nil
}

// GetByExternalID retrieves a paper by its OpenAlex id.
func (r *PgPaperRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Paper, error) {
	if externalID == "" {
		return nil, domain.NewValidationError("openalex_id", "external ID is required")
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE openalex_id = $1`, selectColumns, r.table)

	paper, err := scanPaper(r.db.QueryRow(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", externalID)
		}
		return nil, fmt.Errorf("failed to get paper by external ID: %w", err)
	}
	return paper, nil
}

// TopCited returns the most cited papers.
func (r *PgPaperRepository) TopCited(ctx context.Context, limit int) ([]*domain.Paper, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE cited_by_count IS NOT NULL
		ORDER BY cited_by_count DESC, openalex_id
		LIMIT $1`, selectColumns, r.table)

	rows, err := r.db.Query(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list top cited papers: %w", err)
	}
	defer rows.Close()

	var papers []*domain.Paper
	for rows.Next() {
		paper, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan paper: %w", err)
		}
		papers = append(papers, paper)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating papers: %w", err)
	}
	return papers, nil
}

// Count returns the number of rows in the table.
func (r *PgPaperRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count papers: %w", err)
	}
	return n, nil
}

// TableExists reports whether the table exists.
func (r *PgPaperRepository) TableExists(ctx context.Context) (bool, error) {
	return tableExists(ctx, r.db, r.table)
}

// tableExists resolves a quoted table name through the search path.
func tableExists(ctx context.Context, db DBTX, quoted string) (bool, error) {
	var exists bool
	if err := db.QueryRow(ctx, `SELECT to_regclass($1::text) IS NOT NULL`, quoted).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	return exists, nil
}

func (r *PgPaperRepository) upsertSQL(values string) string {
	updates := make([]string, 0, len(paperColumns))
	for _, col := range paperColumns[1:] {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	updates = append(updates, "updated_at = CURRENT_TIMESTAMP")

	return fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES
			%s
		ON CONFLICT (openalex_id) DO UPDATE SET
			%s`,
		r.table,
		strings.Join(paperColumns, ", "),
		values,
		strings.Join(updates, ",\n\t\t\t"),
	)
}

// placeholderTuple renders ($start, ..., $start+n-1).
func placeholderTuple(start, n int) string {
	var b strings.Builder
	b.WriteByte('(')
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", start+i)
	}
	b.WriteByte(')')
	return b.String()
}

// paperArgs returns the bind values for p in paperColumns order.
func paperArgs(p *domain.Paper) []any {
	return []any{
		p.ExternalID,
		p.DOI,
		p.Title,
		p.PaperType,
		p.PublicationDate,
		p.PublicationYear,
		p.PrimaryTopicName,
		p.PrimaryTopicScore,
		p.SubfieldName,
		p.FieldName,
		p.DomainName,
		p.IsOpenAccess,
		p.OAStatus,
		p.CitedByCount,
		p.CitationPercentile,
		p.IsTop1Percent,
		p.IsTop10Percent,
		p.CitationPercentileMin,
		p.CitationPercentileMax,
		p.FWCI,
		p.CountriesCount,
		p.InstitutionsCount,
	}
}

// selectColumns reads a row back in scanPaper order. Nullable flags and
// counters written by other tools are coalesced to their defaults.
const selectColumns = `openalex_id, doi, title, paper_type, publication_date, publication_year,
		primary_topic_name, primary_topic_score::float8, subfield_name, field_name, domain_name,
		COALESCE(is_open_access, false), oa_status, COALESCE(cited_by_count, 0),
		citation_percentile::float8, COALESCE(is_top_1_percent, false), COALESCE(is_top_10_percent, false),
		citation_percentile_min, citation_percentile_max, fwci::float8,
		COALESCE(countries_count, 0), COALESCE(institutions_count, 0),
		created_at, updated_at`

// scanPaper scans a row produced by selectColumns. pgx.Rows satisfies pgx.Row.
func scanPaper(row pgx.Row) (*domain.Paper, error) {
	var p domain.Paper
	err := row.Scan(
		&p.ExternalID, &p.DOI, &p.Title, &p.PaperType, &p.PublicationDate, &p.PublicationYear,
		&p.PrimaryTopicName, &p.PrimaryTopicScore, &p.SubfieldName, &p.FieldName, &p.DomainName,
		&p.IsOpenAccess, &p.OAStatus, &p.CitedByCount,
		&p.CitationPercentile, &p.IsTop1Percent, &p.IsTop10Percent,
		&p.CitationPercentileMin, &p.CitationPercentileMax, &p.FWCI,
		&p.CountriesCount, &p.InstitutionsCount,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
