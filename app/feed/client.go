package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	maxBodySize    = 10 << 20
	defaultTimeout = 60 * time.Second
)

// HTTPError reports a non-2xx response from a remote feed.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Client fetches remote documents. All requests share one rate limiter.
type Client struct {
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
}

func NewClient(userAgent string, requestsPerSecond float64) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		userAgent:  userAgent,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// RedactURL drops the API key from a request URL so it can be logged.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "invalid url"
	}
	query := u.Query()
	if !query.Has("key") {
		return rawURL
	}
	query.Del("key")
	u.RawQuery = query.Encode()
	return u.String()
}

// redactError strips the API key from the URL carried by net/http errors.
func redactError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = RedactURL(urlErr.URL)
	}
	return err
}

func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	logURL := RedactURL(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", redactError(err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", logURL, redactError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: logURL}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	slog.Debug("Remote document fetched", "url", logURL, "bytes", len(data), "duration", time.Since(start))

	return data, nil
}

// FetchJSON downloads url and returns its parsed JSON tree.
func (c *Client) FetchJSON(ctx context.Context, rawURL string) (gjson.Result, error) {
	data, err := c.Download(ctx, rawURL)
	if err != nil {
		return gjson.Result{}, err
	}

	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("invalid JSON from %s", RedactURL(rawURL))
	}

	return gjson.ParseBytes(data), nil
}
