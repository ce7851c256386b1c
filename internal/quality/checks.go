package quality

import "fmt"

// Category groups checks by the kind of invariant they assert.
type Category string

const (
	CategoryRequired   Category = "required"
	CategoryCounter    Category = "counter"
	CategoryBounded    Category = "bounded"
	CategoryUniqueness Category = "uniqueness"
)

// Check is one fixed data quality assertion. Its query returns a single count
// of violations; zero means the check passed.
type Check struct {
	Name        string
	Description string
	Category    Category
	// Informational checks are reported but never fail the run.
	Informational bool
	// query is a format string taking the quoted table name.
	query string
}

// SQL returns the check's query against table, which must already be quoted.
func (c Check) SQL(table string) string {
	return fmt.Sprintf(c.query, table)
}

// Checks is the fixed battery, in execution order.
var Checks = []Check{
	{
		Name:        "missing_openalex_id",
		Description: "Papers with NULL or empty openalex_id",
		Category:    CategoryRequired,
		query:       `SELECT COUNT(*) FROM %s WHERE openalex_id IS NULL OR openalex_id = ''`,
	},
	{
		Name:        "missing_title",
		Description: "Papers with NULL or empty title",
		Category:    CategoryRequired,
		query:       `SELECT COUNT(*) FROM %s WHERE title IS NULL OR title = ''`,
	},
	{
		Name:        "negative_cited_by_count",
		Description: "Papers with negative cited_by_count",
		Category:    CategoryCounter,
		query:       `SELECT COUNT(*) FROM %s WHERE cited_by_count < 0`,
	},
	{
		Name:        "negative_countries_count",
		Description: "Papers with negative countries_count",
		Category:    CategoryCounter,
		query:       `SELECT COUNT(*) FROM %s WHERE countries_count < 0`,
	},
	{
		Name:        "negative_institutions_count",
		Description: "Papers with negative institutions_count",
		Category:    CategoryCounter,
		query:       `SELECT COUNT(*) FROM %s WHERE institutions_count < 0`,
	},
	{
		Name:        "citation_percentile_out_of_range",
		Description: "Papers with citation_percentile outside [0.0, 1.0]",
		Category:    CategoryBounded,
		query: `SELECT COUNT(*) FROM %s
			WHERE citation_percentile IS NOT NULL
			  AND (citation_percentile < 0.0 OR citation_percentile > 1.0)`,
	},
	{
		Name:        "primary_topic_score_out_of_range",
		Description: "Papers with primary_topic_score outside [0.0, 1.0]",
		Category:    CategoryBounded,
		query: `SELECT COUNT(*) FROM %s
			WHERE primary_topic_score IS NOT NULL
			  AND (primary_topic_score < 0.0 OR primary_topic_score > 1.0)`,
	},
	{
		Name:        "negative_fwci",
		Description: "Papers with negative field-weighted citation impact",
		Category:    CategoryBounded,
		query:       `SELECT COUNT(*) FROM %s WHERE fwci IS NOT NULL AND fwci < 0`,
	},
	{
		Name:        "duplicate_openalex_id",
		Description: "openalex_id values that appear more than once",
		Category:    CategoryUniqueness,
		query: `SELECT COUNT(*) FROM (
				SELECT openalex_id FROM %s
				WHERE openalex_id IS NOT NULL
				GROUP BY openalex_id
				HAVING COUNT(*) > 1
			) AS duplicates`,
	},
	{
		Name:          "duplicate_doi",
		Description:   "DOI values that appear more than once",
		Category:      CategoryUniqueness,
		Informational: true,
		query: `SELECT COUNT(*) FROM (
				SELECT doi FROM %s
				WHERE doi IS NOT NULL AND doi != ''
				GROUP BY doi
				HAVING COUNT(*) > 1
			) AS duplicates`,
	},
}
