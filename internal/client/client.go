// Package client fetches note pages from the content platform.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Options configures a PageClient.
type Options struct {
	// Headers are sent with every request (User-Agent, Cookie, Accept, ...).
	Headers map[string]string
	// Canonicalize strips the query string before requesting. The platform
	// rejects some share links decorated with tracking parameters.
	Canonicalize bool
	// Timeout bounds a whole page request. Zero means no client timeout.
	Timeout time.Duration
	// RequestsPerSecond throttles page requests; <= 0 disables throttling.
	RequestsPerSecond float64
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// PageClient issues authenticated GET requests for note pages. It does not
// retry; callers own the retry policy.
type PageClient struct {
	httpClient   *http.Client
	headers      map[string]string
	canonicalize bool
	limiter      *rate.Limiter
}

// NewPageClient returns a PageClient configured by opts.
func NewPageClient(opts Options) *PageClient {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	c := &PageClient{
		httpClient:   hc,
		headers:      headers,
		canonicalize: opts.Canonicalize,
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c
}

// CanonicalURL drops everything from the first '?' onward.
func CanonicalURL(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}

// FetchPage returns the response body of url as text when the server answers
// 200, and a *FetchError otherwise.
func (c *PageClient) FetchPage(ctx context.Context, url string) (string, error) {
	url = strings.TrimSpace(url)
	if c.canonicalize {
		url = CanonicalURL(url)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &FetchError{Kind: FetchNetwork, URL: url, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &FetchError{Kind: FetchNetwork, URL: url, Err: fmt.Errorf("build request: %w", err)}
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &FetchError{Kind: FetchNetwork, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return "", &FetchError{Kind: FetchHTTPStatus, URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{Kind: FetchNetwork, URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return string(body), nil
}
