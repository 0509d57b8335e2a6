package devpost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/aryan-cs/hackaplan/internal/apperr"
	"github.com/aryan-cs/hackaplan/internal/metrics"
)

// ClientConfig carries the process-wide defaults for outbound fetches.
type ClientConfig struct {
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	UserAgent   string
}

// FetchOptions overrides the client defaults for a single call. Zero values
// fall back to the configured defaults.
type FetchOptions struct {
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

// Client fetches Devpost pages with retries, exponential backoff, and
// status-code classification. It holds no state across calls beyond the
// shared transport and defaults.
type Client struct {
	http   *http.Client
	cfg    ClientConfig
	logger *zap.Logger
}

// NewClient builds a Client. A nil logger is replaced with a no-op.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 600 * time.Millisecond
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "HackaplanBot/1.0 (+https://github.com/aryan-cs/hackaplan)"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// Per-attempt deadlines come from the request context so per-call
	// overrides can exceed the default; the client itself stays unbounded.
	return &Client{
		http:   &http.Client{},
		cfg:    cfg,
		logger: logger,
	}
}

// FetchText GETs url and returns the response body using the client defaults.
func (c *Client) FetchText(ctx context.Context, rawURL string) (string, error) {
	return c.FetchTextOpts(ctx, rawURL, FetchOptions{})
}

// FetchTextOpts GETs url with per-call timeout/retry/backoff overrides.
func (c *Client) FetchTextOpts(ctx context.Context, rawURL string, opts FetchOptions) (string, error) {
	body, err := c.fetchWithRetries(ctx, rawURL, nil, opts)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FetchJSON GETs url with query params and decodes the body as a JSON object.
// Malformed or non-object payloads surface as parse failures.
func (c *Client) FetchJSON(ctx context.Context, rawURL string, params url.Values) (map[string]any, error) {
	body, err := c.fetchWithRetries(ctx, rawURL, params, FetchOptions{})
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperr.Wrap(apperr.CodeParse, err, "Invalid JSON response while fetching %s", rawURL)
	}
	return payload, nil
}

func (c *Client) fetchWithRetries(ctx context.Context, rawURL string, params url.Values, opts FetchOptions) ([]byte, error) {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = c.cfg.MaxRetries
	}
	backoffBase := opts.BackoffBase
	if backoffBase <= 0 {
		backoffBase = c.cfg.BackoffBase
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}

	var lastErr error
	lastTimedOut := false

	for attempt := 1; attempt <= maxRetries; attempt++ {
		body, err := c.fetchOnce(ctx, rawURL, params, timeout)
		if err == nil {
			return body, nil
		}

		// Blocked and terminal 4xx responses never burn retries; neither
		// does cancellation of the caller's context.
		if apperr.Is(err, apperr.CodeBlocked) || errors.Is(err, errTerminalStatus) || ctx.Err() != nil {
			return nil, err
		}

		lastErr = err
		lastTimedOut = isTimeout(err)
		c.logger.Debug("fetch attempt failed",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt == maxRetries {
			break
		}
		if err := sleep(ctx, backoffBase*(1<<(attempt-1))); err != nil {
			return nil, err
		}
	}

	if lastTimedOut {
		return nil, apperr.Wrap(apperr.CodeTimeout, lastErr, "Request timeout while fetching %s", rawURL)
	}
	if lastErr != nil {
		if apperr.CodeOf(lastErr) == apperr.CodeNetwork {
			return nil, lastErr
		}
		return nil, apperr.Wrap(apperr.CodeNetwork, lastErr, "Network error while fetching %s: %v", rawURL, lastErr)
	}
	return nil, apperr.New(apperr.CodeNetwork, "Network error while fetching %s", rawURL)
}

// errTerminalStatus marks non-retryable 4xx responses other than 403/429.
var errTerminalStatus = errors.New("terminal status")

func (c *Client) fetchOnce(ctx context.Context, rawURL string, params url.Values, timeout time.Duration) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, err, "Invalid request URL %s", rawURL)
	}
	if params != nil {
		req.URL.RawQuery = params.Encode()
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveFetch("transport_error", time.Since(start))
		return nil, fmt.Errorf("request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		metrics.ObserveFetch("blocked", time.Since(start))
		return nil, apperr.New(apperr.CodeBlocked,
			"Devpost denied access while fetching %s (status %d)", rawURL, resp.StatusCode)
	case resp.StatusCode >= 500:
		metrics.ObserveFetch("server_error", time.Since(start))
		return nil, apperr.New(apperr.CodeNetwork, "Devpost returned %d for %s", resp.StatusCode, rawURL)
	case resp.StatusCode >= 400:
		metrics.ObserveFetch("client_error", time.Since(start))
		return nil, apperr.Wrap(apperr.CodeNetwork, errTerminalStatus,
			"Unable to fetch %s; received %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveFetch("transport_error", time.Since(start))
		return nil, fmt.Errorf("read body %s: %w", rawURL, err)
	}
	metrics.ObserveFetch("ok", time.Since(start))
	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
