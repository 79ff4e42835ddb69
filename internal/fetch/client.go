// Package fetch is the HTTP transport for the scraper and the download
// queue. It owns retry with exponential backoff, honoring Retry-After on
// 429s, and enforces a minimum spacing between requests so an unattended
// run never hammers the site.
package fetch

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/seliux/vaultgrab/internal/logctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Browser-like agent; the download endpoint rejects obvious bots.
const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config holds transport tuning knobs.
type Config struct {
	Timeout     time.Duration
	MaxRetries  uint
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MinInterval time.Duration
	UserAgent   string
}

// Client is a rate-limit-aware HTTP client. Safe for concurrent use; the
// minimum inter-request spacing is enforced across all callers.
type Client struct {
	httpClient *http.Client
	cfg        Config

	mu          sync.Mutex
	lastRequest time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Second
	}

	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = time.Minute
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cfg: cfg,
	}
}

// Get performs a GET with retry/backoff and minimum spacing. The caller owns
// the response body. Client errors (4xx except 429) are permanent; 429 and
// 5xx are retried up to MaxRetries extra attempts.
func (c *Client) Get(ctx context.Context, url string, headers http.Header) (*http.Response, error) {
	logger := logctx.LoggerFromContext(ctx)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.BaseDelay
	bo.MaxInterval = c.cfg.MaxDelay

	attempt := 0

	operation := func() (*http.Response, error) {
		attempt++

		if err := c.pace(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		resp, err := c.do(ctx, url, headers)
		if err != nil {
			logger.Warn("request attempt failed", "url", url, "attempt", attempt, "err", err)
		}

		return resp, err
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(c.cfg.MaxRetries+1),
	)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// do performs a single attempt and classifies the outcome.
func (c *Client) do(ctx context.Context, url string, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(&ClientError{URL: url, StatusCode: 0})
	}

	req.Header.Set("User-Agent", c.cfg.UserAgent)

	for key, values := range headers {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{URL: url, Err: err}
		}

		if errors.Is(err, context.Canceled) {
			return nil, backoff.Permanent(err)
		}

		return nil, &ConnectionError{URL: url, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()

		return nil, rateLimitError(url, resp.Header.Get("Retry-After"))
	case resp.StatusCode >= 500:
		resp.Body.Close()

		return nil, &ServerError{URL: url, StatusCode: resp.StatusCode}
	case resp.StatusCode >= 400:
		resp.Body.Close()

		return nil, backoff.Permanent(&ClientError{URL: url, StatusCode: resp.StatusCode})
	}

	return resp, nil
}

// rateLimitError wires the server-supplied delay into the backoff schedule.
func rateLimitError(url, retryAfter string) *RateLimitError {
	e := &RateLimitError{URL: url}

	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
			e.Err = &backoff.RetryAfterError{Duration: e.RetryAfter}
		}
	}

	return e
}

// pace blocks until the minimum inter-request interval has elapsed.
func (c *Client) pace(ctx context.Context) error {
	if c.cfg.MinInterval <= 0 {
		return nil
	}

	c.mu.Lock()
	wait := c.cfg.MinInterval - time.Since(c.lastRequest)
	c.lastRequest = time.Now().Add(wait)
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
