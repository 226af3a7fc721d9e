package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"popreport/pkg/dataset"
)

const (
	defaultHTTPTimeout      = 10 * time.Second
	defaultMaxRetries       = 2
	defaultRetryBackoffBase = 150 * time.Millisecond
	defaultManifestVersion  = 1
	maxErrorBodyBytes       = 512
)

// Client fetches the manifest and monthly shards from a static host. The base
// may be an http(s) URL or a local directory laid out the same way.
type Client struct {
	base            string
	localDir        string
	httpClient      *http.Client
	timeout         time.Duration
	maxRetries      int
	manifestVersion int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient injects a custom http.Client. Ignored for local directories.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithHTTPTimeout sets the per-request timeout of the default http.Client.
func WithHTTPTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRetries adjusts the retry budget for transient failures.
func WithMaxRetries(max int) ClientOption {
	return func(c *Client) {
		if max >= 0 {
			c.maxRetries = max
		}
	}
}

// WithManifestVersion selects manifest.v{N}.json.
func WithManifestVersion(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.manifestVersion = n
		}
	}
}

// NewClient constructs a shard client rooted at base.
func NewClient(base string, opts ...ClientOption) (*Client, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return nil, fmt.Errorf("loader: base url is required")
	}
	c := &Client{
		timeout:         defaultHTTPTimeout,
		maxRetries:      defaultMaxRetries,
		manifestVersion: defaultManifestVersion,
	}
	if u, err := url.Parse(base); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		c.base = strings.TrimRight(base, "/")
	} else {
		dir, err := filepath.Abs(base)
		if err != nil {
			return nil, fmt.Errorf("loader: resolve data dir %s: %w", base, err)
		}
		c.localDir = dir
		c.base = "file://"
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.localDir != "" {
		c.httpClient = &http.Client{Transport: http.NewFileTransport(http.Dir(c.localDir)), Timeout: c.timeout}
	} else if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// ManifestURL is the location of the versioned manifest.
func (c *Client) ManifestURL() string {
	return fmt.Sprintf("%s/manifest.v%d.json", c.base, c.manifestVersion)
}

// MonthURL is the location of one shard.
func (c *Client) MonthURL(currency, period string) string {
	return fmt.Sprintf("%s/monthly/%s/%s.json", c.base, url.PathEscape(currency), url.PathEscape(period))
}

// Base returns the configured root, or the local directory.
func (c *Client) Base() string {
	if c.localDir != "" {
		return c.localDir
	}
	return c.base
}

// FetchManifest downloads and decodes the manifest.
func (c *Client) FetchManifest(ctx context.Context) (*dataset.Manifest, error) {
	var m dataset.Manifest
	if err := c.getJSON(ctx, c.ManifestURL(), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// FetchMonth downloads and decodes one shard. Identifiers must be normalised.
func (c *Client) FetchMonth(ctx context.Context, currency, period string) (*dataset.MonthlyRecord, error) {
	var rec dataset.MonthlyRecord
	if err := c.getJSON(ctx, c.MonthURL(currency, period), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// getJSON issues a GET and decodes the body into result, retrying transport
// failures and 5xx/429 responses with exponential backoff.
func (c *Client) getJSON(ctx context.Context, target string, result any) error {
	var lastErr error
	backoff := defaultRetryBackoffBase
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		retry, err := c.getOnce(ctx, target, result)
		if err == nil {
			return nil
		}
		if !retry || ctx.Err() != nil {
			return err
		}
		lastErr = err
		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}
	return lastErr
}

func (c *Client) getOnce(ctx context.Context, target string, result any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, fmt.Errorf("loader: build request %s: %w", target, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		fe := &FetchError{URL: target, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(body)))}
		if resp.StatusCode == http.StatusNotFound {
			fe.Err = ErrNotFound
		}
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return retry, fe
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return false, fmt.Errorf("loader: decode %s: %w", target, err)
	}
	return false, nil
}
