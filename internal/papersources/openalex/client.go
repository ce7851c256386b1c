package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-etl/internal/domain"
	"github.com/helixir/paper-etl/internal/observability"
	"github.com/helixir/paper-etl/internal/papersources"
)

const (
	// SourceName identifies OpenAlex in logs, metrics and run events.
	SourceName = "openalex"

	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 10.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxPerPage is the largest page OpenAlex serves.
	MaxPerPage = 200

	// topicSearchPerPage is how many topics are scanned when resolving ids.
	topicSearchPerPage = 50

	maxPageBytes = 64 << 20
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	BaseURL string

	// Email is sent as mailto for the polite pool.
	Email string

	// APIKey is sent as api_key when set.
	APIKey string

	Timeout   time.Duration
	RateLimit float64
	BurstSize int

	// PerPage is the page size, at most MaxPerPage.
	PerPage int

	// MaxPages bounds the pages read per filter. Zero means no bound.
	MaxPages int

	// TopicQuery is searched in /topics when FieldID and SubfieldID are empty.
	TopicQuery string

	// FieldID and SubfieldID select works by primary topic classification.
	FieldID    string
	SubfieldID string
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.PerPage <= 0 || c.PerPage > MaxPerPage {
		c.PerPage = MaxPerPage
	}
}

// Client fetches works from OpenAlex.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

var _ papersources.RecordSource = (*Client)(nil)

// New creates a new OpenAlex client. metrics may be nil.
func New(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	userAgent := "paper-etl/1.0"
	if cfg.Email != "" {
		userAgent += " (mailto:" + cfg.Email + ")"
	}

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:        SourceName,
		Timeout:       cfg.Timeout,
		RateLimit:     cfg.RateLimit,
		BurstSize:     cfg.BurstSize,
		UserAgent:     userAgent,
		OnRateLimited: func() { metrics.RecordSourceRateLimited(SourceName) },
	}, logger)

	return NewWithHTTPClient(cfg, httpClient, logger, metrics)
}

// NewWithHTTPClient creates a client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "openalex").Logger(),
		metrics:    metrics,
	}
}

// Name returns the source name.
func (c *Client) Name() string {
	return SourceName
}

// ResolveTopic searches /topics for query and returns the ids of the first
// field and the first subfield whose display names contain it,
// case-insensitively. It fails with domain.ErrNotFound when neither matches.
func (c *Client) ResolveTopic(ctx context.Context, query string) (TopicIDs, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return TopicIDs{}, domain.NewValidationError("topic_query", "topic query is required")
	}

	values := c.baseQuery()
	values.Set("search", query)
	values.Set("per_page", strconv.Itoa(topicSearchPerPage))

	var page topicsPage
	if err := c.getJSON(ctx, "topics", values, &page); err != nil {
		return TopicIDs{}, fmt.Errorf("searching topics for %q: %w", query, err)
	}

	needle := strings.ToLower(query)
	var ids TopicIDs
	for _, topic := range page.Results {
		if ids.FieldID == "" && matches(topic.Field, needle) {
			ids.FieldID = lastPathSegment(topic.Field.ID)
			c.logger.Info().Str("field", topic.Field.DisplayName).Str("field_id", ids.FieldID).Msg("resolved field")
		}
		if ids.SubfieldID == "" && matches(topic.Subfield, needle) {
			ids.SubfieldID = lastPathSegment(topic.Subfield.ID)
			c.logger.Info().Str("subfield", topic.Subfield.DisplayName).Str("subfield_id", ids.SubfieldID).Msg("resolved subfield")
		}
		if ids.FieldID != "" && ids.SubfieldID != "" {
			break
		}
	}

	if ids.Empty() {
		return TopicIDs{}, fmt.Errorf("no field or subfield matches %q: %w", query, domain.NewNotFoundError("topic", query))
	}
	return ids, nil
}

// Fetch returns works published on or after params.From whose primary topic
// is in the configured field or subfield. Works found under both filters are
// returned once, in first-seen order.
func (c *Client) Fetch(ctx context.Context, params papersources.FetchParams) ([]domain.RawRecord, error) {
	ids := TopicIDs{FieldID: c.config.FieldID, SubfieldID: c.config.SubfieldID}
	if ids.Empty() {
		resolved, err := c.ResolveTopic(ctx, c.config.TopicQuery)
		if err != nil {
			return nil, err
		}
		ids = resolved
	}

	var filters []string
	if ids.FieldID != "" {
		filters = append(filters, "primary_topic.field.id:"+ids.FieldID)
	}
	if ids.SubfieldID != "" {
		filters = append(filters, "primary_topic.subfield.id:"+ids.SubfieldID)
	}

	seen := make(map[string]struct{})
	var records []domain.RawRecord
	for _, topicFilter := range filters {
		before := len(records)
		if err := c.fetchFilter(ctx, topicFilter, params, seen, &records); err != nil {
			return nil, err
		}
		c.logger.Info().
			Str("filter", topicFilter).
			Int("new_records", len(records)-before).
			Int("total", len(records)).
			Msg("filter fetched")
	}

	c.metrics.RecordRecordsFetched(SourceName, len(records))
	return records, nil
}

// fetchFilter pages through one topic filter. A short or empty page ends it.
func (c *Client) fetchFilter(ctx context.Context, topicFilter string, params papersources.FetchParams, seen map[string]struct{}, records *[]domain.RawRecord) error {
	filter := topicFilter + ",from_publication_date:" + params.DateFrom()
	if !params.Until.IsZero() {
		filter += ",to_publication_date:" + params.Until.Format("2006-01-02")
	}

	for page := 1; c.config.MaxPages == 0 || page <= c.config.MaxPages; page++ {
		values := c.baseQuery()
		values.Set("filter", filter)
		values.Set("per_page", strconv.Itoa(c.config.PerPage))
		values.Set("page", strconv.Itoa(page))

		var resp worksPage
		if err := c.getJSON(ctx, "works", values, &resp); err != nil {
			return fmt.Errorf("fetching works page %d (%s): %w", page, topicFilter, err)
		}

		for i, raw := range resp.Results {
			rec, err := domain.DecodeRawRecord(raw)
			if err != nil {
				// Kept as a nil record so the normalizer counts it as a skip.
				c.logger.Warn().Err(err).Int("page", page).Int("index", i).Msg("undecodable work")
				*records = append(*records, rec)
				continue
			}
			if id := rec.ID(); id != "" {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}
			*records = append(*records, rec)
		}

		c.logger.Debug().Int("page", page).Int("results", len(resp.Results)).Int("total", resp.Meta.Count).Msg("works page fetched")

		if len(resp.Results) < c.config.PerPage {
			return nil
		}
	}

	c.logger.Warn().Int("max_pages", c.config.MaxPages).Str("filter", topicFilter).Msg("page limit reached")
	return nil
}

func (c *Client) baseQuery() url.Values {
	values := url.Values{}
	if c.config.Email != "" {
		values.Set("mailto", c.config.Email)
	}
	if c.config.APIKey != "" {
		values.Set("api_key", c.config.APIKey)
	}
	return values
}

// getJSON issues a GET to endpoint and decodes the body into dst.
func (c *Client) getJSON(ctx context.Context, endpoint string, values url.Values, dst any) (err error) {
	started := time.Now()
	defer func() {
		c.metrics.RecordSourceRequest(SourceName, endpoint, time.Since(started).Seconds(), err)
	}()

	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return fmt.Errorf("parsing base URL: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + endpoint
	u.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return domain.NewExternalAPIError("OpenAlex", resp.StatusCode, strings.TrimSpace(string(body)), nil)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPageBytes)).Decode(dst); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func matches(t *Taxonomy, needle string) bool {
	return t != nil && t.ID != "" && strings.Contains(strings.ToLower(t.DisplayName), needle)
}

// lastPathSegment turns https://openalex.org/subfields/1702 into 1702.
func lastPathSegment(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}
