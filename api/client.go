// Package api is the authenticated HTTP client for the Quantify backend.
//
// The Client injects the session's bearer and CSRF credentials into every
// outbound call and transparently recovers from an expired access token:
// a 401 triggers one token refresh and one re-issue of the original request.
// A second 401, or a refresh failure, forces a logout and propagates to the
// caller. Concurrent calls each carry their own retry budget; simultaneous
// refreshes are tolerated rather than coalesced, since refresh tokens remain
// valid until rotated.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MuhibNayem/quantify-go/internal/metrics"
	"github.com/MuhibNayem/quantify-go/session"
)

const tracerName = "github.com/MuhibNayem/quantify-go/api"

// mutating methods carry the anti-forgery token.
func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Client performs authenticated calls against the Quantify API.
type Client struct {
	baseURL        string
	authServiceURL string
	timeout        time.Duration
	httpClient     *http.Client
	sessions       *session.Store
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

// NewClient creates a Client bound to the given session store.
// It reads defaults from QUANTIFY_* environment variables; options override
// them.
func NewClient(sessions *session.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:        envOrDefault("QUANTIFY_API_BASE_URL", "http://localhost:8080/api/v1"),
		authServiceURL: os.Getenv("QUANTIFY_AUTH_SERVICE_URL"),
		timeout:        15 * time.Second,
		sessions:       sessions,
		logger:         slog.Default(),
		tracer:         otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.authServiceURL == "" {
		c.authServiceURL = strings.TrimRight(c.baseURL, "/") + "/users"
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}

	return c
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Sessions returns the session store this client mutates on refresh and
// forced logout.
func (c *Client) Sessions() *session.Store { return c.sessions }

// Do performs an authenticated request. body (when non-nil) is marshalled as
// JSON; on a 2xx response the payload is unmarshalled into result (when
// non-nil). A 401 is recovered at most once via token refresh; every other
// failure propagates unchanged as a tagged error.
func (c *Client) Do(ctx context.Context, method, path string, body, result any) error {
	ctx, span := c.tracer.Start(ctx, "quantify.api.request",
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
		))
	defer span.End()

	sess := c.sessions.Current()
	status, data, err := c.send(ctx, method, path, body, sess.AccessToken, sess.CSRFToken)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if status == http.StatusUnauthorized {
		status, data, err = c.recoverUnauthorized(ctx, method, path, body, status, data)
		if err != nil {
			span.RecordError(err)
			return err
		}
	}

	span.SetAttributes(attribute.Int("http.status_code", status))
	return c.finish(method, path, status, data, result)
}

// Get issues an authenticated GET request.
func (c *Client) Get(ctx context.Context, path string, result any) error {
	return c.Do(ctx, http.MethodGet, path, nil, result)
}

// Post issues an authenticated POST request.
func (c *Client) Post(ctx context.Context, path string, body, result any) error {
	return c.Do(ctx, http.MethodPost, path, body, result)
}

// Put issues an authenticated PUT request.
func (c *Client) Put(ctx context.Context, path string, body, result any) error {
	return c.Do(ctx, http.MethodPut, path, body, result)
}

// Patch issues an authenticated PATCH request.
func (c *Client) Patch(ctx context.Context, path string, body, result any) error {
	return c.Do(ctx, http.MethodPatch, path, body, result)
}

// Delete issues an authenticated DELETE request.
func (c *Client) Delete(ctx context.Context, path string, result any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, result)
}

// recoverUnauthorized handles the single-retry refresh protocol for a 401.
// It returns the outcome of the retried request, or an error when recovery
// is impossible. The session is cleared on every unrecoverable path.
func (c *Client) recoverUnauthorized(ctx context.Context, method, path string, body any, status int, data []byte) (int, []byte, error) {
	sess := c.sessions.Current()

	// Refresh must not proceed without a known identity: a session rebuilt
	// from a rotated token pair but no user would violate the completeness
	// invariant.
	if sess.RefreshToken == "" || sess.User == nil {
		c.logger.Info("unauthorized with no refreshable session, logging out",
			"method", method, "path", path)
		c.sessions.Logout()
		return 0, nil, &APIError{StatusCode: status, Message: serverMessage(data), Method: method, Path: path}
	}

	creds, err := c.refreshTokens(ctx, sess.RefreshToken)
	if err != nil {
		c.logger.Warn("token refresh failed, logging out", "error", err)
		c.sessions.Logout()
		return 0, nil, &RefreshError{Cause: err}
	}

	if err := c.sessions.Login(creds.AccessToken, creds.RefreshToken, creds.CSRFToken, *sess.User, sess.Permissions); err != nil {
		c.sessions.Logout()
		return 0, nil, &RefreshError{Cause: err}
	}
	c.logger.Debug("access token rotated, retrying original request",
		"method", method, "path", path)

	// Exactly one re-issue; a second 401 is final.
	status, data, err = c.send(ctx, method, path, body, creds.AccessToken, creds.CSRFToken)
	if err != nil {
		return 0, nil, err
	}
	if status == http.StatusUnauthorized {
		c.logger.Warn("retried request still unauthorized, logging out",
			"method", method, "path", path)
		c.sessions.Logout()
		return 0, nil, &APIError{StatusCode: status, Message: serverMessage(data), Method: method, Path: path}
	}
	return status, data, nil
}

// finish maps the terminal response to the caller's result or a tagged error.
func (c *Client) finish(method, path string, status int, data []byte, result any) error {
	if status < 200 || status >= 300 {
		return &APIError{StatusCode: status, Message: serverMessage(data), Method: method, Path: path}
	}
	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return &ParseError{Cause: err}
		}
	}
	return nil
}

// send issues one HTTP request with the given credentials and returns the
// status and body. Transport failures come back as *NetworkError.
func (c *Client) send(ctx context.Context, method, path string, body any, accessToken, csrfToken string) (int, []byte, error) {
	url := strings.TrimRight(c.baseURL, "/") + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if csrfToken != "" && isMutating(method) {
		httpReq.Header.Set("X-CSRF-Token", csrfToken)
	}
	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.ObserveRequest(method, "network_error", time.Since(start).Seconds())
		return 0, nil, &NetworkError{Cause: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.metrics.ObserveRequest(method, "network_error", time.Since(start).Seconds())
		return 0, nil, &NetworkError{Cause: err}
	}

	c.metrics.ObserveRequest(method, strconv.Itoa(httpResp.StatusCode), time.Since(start).Seconds())
	return httpResp.StatusCode, data, nil
}

// serverMessage extracts the backend's {"error": "..."} message, when present.
func serverMessage(data []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return ""
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
