package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

const (
	// DefaultUserAgent identifies the client to the remote services
	DefaultUserAgent = "nxauth/1.0"

	// DefaultClientTimeout bounds a single request including retries
	DefaultClientTimeout = 60 * time.Second
)

// Config is used to configure the creation of the client
type Config struct {
	// Address is the base URL of the remote service, a complete URL such
	// as "https://api.example.com"
	Address string

	// HttpClient is the HTTP client to use. Sane pooled defaults are set
	// when nil.
	HttpClient *http.Client

	// MinRetryWait controls the minimum time to wait before retrying
	// when a retryable status occurs. Defaults to 500 milliseconds.
	MinRetryWait time.Duration

	// MaxRetryWait controls the maximum time to wait before retrying.
	// Defaults to 3 seconds.
	MaxRetryWait time.Duration

	// MaxRetries controls the maximum number of retries on retryable
	// statuses. Set to 0 to disable retrying. Defaults to 2.
	MaxRetries int

	// Limiter throttles outgoing requests client-side. Optional.
	Limiter *rate.Limiter

	// UserAgent overrides DefaultUserAgent when set
	UserAgent string

	// Timeout bounds each request. Defaults to DefaultClientTimeout.
	Timeout time.Duration
}

// DefaultConfig returns a config with pooled transport and bounded retries
func DefaultConfig() *Config {
	return &Config{
		HttpClient:   cleanhttp.DefaultPooledClient(),
		MinRetryWait: 500 * time.Millisecond,
		MaxRetryWait: 3 * time.Second,
		MaxRetries:   2,
		Timeout:      DefaultClientTimeout,
	}
}

// ParseRateLimit reads a client rate limit in "rate:burst" form. A
// bare number sets the burst equal to the rate.
func ParseRateLimit(val string) (rateLimit float64, burst int, err error) {
	_, err = fmt.Sscanf(val, "%f:%d", &rateLimit, &burst)
	if err != nil {
		rateLimit, err = strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("api: rate limit %q is incorrectly formatted", val)
		}
		burst = int(rateLimit)
	}
	return rateLimit, burst, nil
}

// Client is the HTTP client the service packages build their calls on
type Client struct {
	config *Config
	base   *url.URL
	retry  *retryablehttp.Client
}

// NewClient returns a client for the given config. The same Config can
// back several clients with different addresses.
func NewClient(c *Config) (*Client, error) {
	if c == nil {
		c = DefaultConfig()
	}
	if c.Address == "" {
		return nil, fmt.Errorf("api: address is required")
	}

	base, err := url.Parse(c.Address)
	if err != nil {
		return nil, fmt.Errorf("api: invalid address %q: %w", c.Address, err)
	}

	httpClient := c.HttpClient
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
	}
	if c.Timeout > 0 {
		httpClient.Timeout = c.Timeout
	} else {
		httpClient.Timeout = DefaultClientTimeout
	}

	retryClient := &retryablehttp.Client{
		HTTPClient:   httpClient,
		RetryWaitMin: c.MinRetryWait,
		RetryWaitMax: c.MaxRetryWait,
		RetryMax:     c.MaxRetries,
		CheckRetry:   retryPolicy,
		Backoff:      retryablehttp.RateLimitLinearJitterBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}

	return &Client{
		config: c,
		base:   base,
		retry:  retryClient,
	}, nil
}

// retryPolicy retries on transient gateway statuses only; everything
// else, including 4xx, is handed back to the caller untouched
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return IsTransient(err), nil
	}
	return isTransientStatus(resp.StatusCode), nil
}

// BaseURL returns the configured base address
func (c *Client) BaseURL() string {
	return c.base.String()
}

// DoJSON performs a JSON request against path (resolved relative to the
// base address) and decodes a 2xx response body into out when out is
// non-nil. Non-2xx responses are returned as *StatusError with the body
// preserved for the service packages to interpret.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out interface{}) error {
	rel, err := url.Parse(strings.TrimSuffix(c.base.Path, "/") + path)
	if err != nil {
		return fmt.Errorf("api: invalid request path %q: %w", path, err)
	}
	u := *c.base.ResolveReference(rel)

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("api: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	userAgent := c.config.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)

	if c.config.Limiter != nil {
		if err := c.config.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	resp, err := c.retry.Do(req)
	if err != nil {
		return &TransportError{Method: method, URL: u.String(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: method, URL: u.String(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			Method:     method,
			URL:        u.String(),
			StatusCode: resp.StatusCode,
			Body:       data,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("api: failed to decode response from %s: %w", u.String(), err)
	}
	return nil
}
