package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Approval calls are tiny and rare. A slow answer usually means the wrong
// host, so the default timeout is short.
const (
	DefaultTimeout      = 10 * time.Second
	DefaultRetries      = 3
	DefaultRetryBackoff = 500 * time.Millisecond
)

// Client talks to one KIS REST host, production or paper trading. Its only
// job is issuing websocket approval keys.
type Client struct {
	baseURL string
	hc      *http.Client
	logger  *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient returns a client for the KIS REST host at baseURL, such as
// config.DefaultKISRestURL. A trailing slash is dropped.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		hc:           &http.Client{Timeout: DefaultTimeout},
		logger:       slog.Default(),
		maxRetries:   DefaultRetries,
		retryBackoff: DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout bounds a single round trip. Retries get their own budget.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.hc.Timeout = d }
}

// WithRetries sets how many times a 429 or 5xx answer is retried and the
// first backoff. Later waits double.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger. nil keeps slog.Default.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient swaps the transport, e.g. for a proxy to the paper host.
// Apply it before WithTimeout if both are given.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.hc = hc }
}
