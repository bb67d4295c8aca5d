// Package backend provides the typed HTTP client for the campaign pipeline
// backend. It is the single place where raw transport failures are turned
// into the classified error taxonomy; callers above this package match on
// error classes, never on status codes.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Isha1703/campaign-dashboard-sub001/apierrors"
	"github.com/Isha1703/campaign-dashboard-sub001/retry"
)

// HTTPDoer is the seam between the client and the HTTP transport. It allows
// tests to substitute a scripted transport without a listening server.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the campaign backend.
type Client struct {
	baseURL   string
	http      HTTPDoer
	logger    *slog.Logger
	retryOpts []retry.Option
}

// Config collects client construction parameters.
type Config struct {
	BaseURL    string
	HTTPClient HTTPDoer
	Logger     *slog.Logger
	Timeout    time.Duration
	RetryOpts  []retry.Option
}

// Option mutates Config.
type Option func(*Config)

// WithBaseURL sets the backend base URL (default http://localhost:8000).
func WithBaseURL(u string) Option {
	return func(c *Config) { c.BaseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient substitutes the HTTP transport. Primarily for tests.
func WithHTTPClient(d HTTPDoer) Option {
	return func(c *Config) { c.HTTPClient = d }
}

// WithLogger sets the logger for retry notices and degraded-mode warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithTimeout sets the per-request timeout of the default transport. It has
// no effect when a custom HTTPClient is supplied.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetryOptions overrides the retry policy applied to retryable calls.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(c *Config) { c.RetryOpts = opts }
}

// New creates a backend client.
func New(opts ...Option) *Client {
	cfg := &Config{
		BaseURL: "http://localhost:8000",
		Timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		baseURL:   cfg.BaseURL,
		http:      cfg.HTTPClient,
		logger:    cfg.Logger,
		retryOpts: cfg.RetryOpts,
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do performs one request and decodes the JSON body into out (when non-nil).
// Classification happens here and nowhere else.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apierrors.New(op, apierrors.ClassValidation, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apierrors.New(op, apierrors.ClassValidation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apierrors.FromTransport(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierrors.New(op, apierrors.ClassNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierrors.FromHTTP(op, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apierrors.New(op, apierrors.ClassServer, err).
			WithMessage("malformed response body")
	}
	return nil
}

// doRetry wraps do in the client's retry policy. The default predicate
// retries only transient classes, so validation and not-found responses
// surface immediately.
func (c *Client) doRetry(ctx context.Context, op, method, path string, body, out any) error {
	return retry.Do(ctx, func(ctx context.Context) error {
		return c.do(ctx, op, method, path, body, out)
	}, c.retryOpts...)
}

func sessionPath(sessionID, suffix string) string {
	return fmt.Sprintf("/api/session/%s%s", sessionID, suffix)
}
