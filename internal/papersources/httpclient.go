package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-etl/internal/domain"
)

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Source names the API in errors and logs.
	Source string

	// Timeout is the per-attempt request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries is the maximum number of retry attempts.
	MaxRetries int

	// RetryDelay is the base delay between retries. It doubles per attempt
	// unless the server sends Retry-After.
	RetryDelay time.Duration

	// MaxRetryDelay caps the backoff.
	MaxRetryDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key sent as APIKeyHeader.
	APIKey string

	// APIKeyHeader is the header name for the API key.
	APIKeyHeader string

	// OnRateLimited is called for every 429 response. Optional.
	OnRateLimited func()
}

// HTTPClient wraps http.Client with rate limiting and retries.
// It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
	logger      zerolog.Logger
}

// NewHTTPClient creates a new HTTP client with rate limiting.
// It retries network errors, 429 and 5xx responses.
func NewHTTPClient(cfg HTTPClientConfig, logger zerolog.Logger) *HTTPClient {
	if cfg.Source == "" {
		cfg.Source = "http"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 1
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "paper-etl/1.0"
	}

	return &HTTPClient{
		client:      &http.Client{Timeout: cfg.Timeout},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
		logger:      logger.With().Str("component", "http_client").Str("source", cfg.Source).Logger(),
	}
}

// Do executes a GET-style request with rate limiting and retries. The caller
// owns the returned body. Requests with a body must set GetBody to be retried.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.resetRequestBody(req); err != nil {
				return nil, fmt.Errorf("cannot retry request: %w", err)
			}
		}

		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == c.config.MaxRetries {
				break
			}
			delay := c.backoff(attempt)
			c.logger.Warn().Err(err).Int("attempt", attempt+1).Dur("retry_in", delay).Msg("request failed, retrying")
			if err := c.waitForRetry(req.Context(), delay); err != nil {
				return nil, err
			}
			continue
		}

		if !shouldRetry(resp.StatusCode) {
			return resp, nil
		}

		delay := c.retryDelay(resp, attempt)
		drain(resp)

		if resp.StatusCode == http.StatusTooManyRequests {
			if c.config.OnRateLimited != nil {
				c.config.OnRateLimited()
			}
			c.rateLimiter.Slow(0.5)
			lastErr = domain.NewRateLimitError(c.config.Source, delay)
		} else {
			lastErr = domain.NewExternalAPIError(c.config.Source, resp.StatusCode, "server error", nil)
		}

		if attempt == c.config.MaxRetries {
			break
		}
		c.logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).Dur("retry_in", delay).Msg("retryable response")
		if err := c.waitForRetry(req.Context(), delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("giving up after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func shouldRetry(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= 500 && statusCode < 600)
}

// backoff returns RetryDelay doubled per attempt, capped at MaxRetryDelay.
func (c *HTTPClient) backoff(attempt int) time.Duration {
	delay := c.config.RetryDelay << attempt
	if delay <= 0 || delay > c.config.MaxRetryDelay {
		return c.config.MaxRetryDelay
	}
	return delay
}

// retryDelay honours Retry-After (seconds or HTTP date) and falls back to backoff.
func (c *HTTPClient) retryDelay(resp *http.Response, attempt int) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return c.backoff(attempt)
	}
	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil && seconds > 0 {
		return min(time.Duration(seconds)*time.Second, c.config.MaxRetryDelay)
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		if delay := time.Until(t); delay > 0 {
			return min(delay, c.config.MaxRetryDelay)
		}
	}
	return c.backoff(attempt)
}

func (c *HTTPClient) waitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *HTTPClient) resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get request body for retry: %w", err)
	}
	req.Body = body
	return nil
}

func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}
