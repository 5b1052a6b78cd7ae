package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/MuhibNayem/quantify-go/internal/metrics"
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL sets the API base URL (e.g. "http://localhost:8080/api/v1").
// If not set, defaults to the QUANTIFY_API_BASE_URL environment variable.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithAuthServiceURL sets the identity service base URL used for the refresh
// protocol. If not set, defaults to the QUANTIFY_AUTH_SERVICE_URL environment
// variable, falling back to "<base URL>/users".
func WithAuthServiceURL(url string) Option {
	return func(c *Client) {
		c.authServiceURL = url
	}
}

// WithTimeout sets the HTTP request timeout.
// If not set, defaults to 15 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient sets a custom http.Client for making requests.
// This is useful for testing, proxying, or custom transport configurations.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the Prometheus instrumentation. Defaults to none.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}
