package api

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrUnauthorized is returned when a request fails with 401 and could not
	// be recovered by a token refresh.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRefreshFailed is returned when the identity service rejects the
	// refresh token (or none is held). The session is cleared before this
	// error reaches the caller.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrServer is returned for 5xx responses.
	ErrServer = errors.New("server error")

	// ErrNetwork is returned for transport-level failures (DNS, connection
	// refused, timeouts).
	ErrNetwork = errors.New("network error")

	// ErrParse is returned when a response body cannot be decoded.
	ErrParse = errors.New("malformed response")

	// ErrNotAuthenticated is returned by operations that require a known
	// user identity when none is present. This is a caller bug, not a
	// recoverable condition.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// APIError is a non-2xx HTTP response from the backend.
type APIError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int
	// Message is the server-provided error message, when one was sent.
	Message string
	// Method and Path identify the failed call.
	Method string
	Path   string
}

// Error returns a human-readable description of the failed call.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %d", e.Method, e.Path, e.StatusCode)
}

// Is reports whether this error matches the target sentinel.
// 401 responses match ErrUnauthorized; 5xx responses match ErrServer.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == 401
	case ErrServer:
		return e.StatusCode >= 500
	}
	return false
}

// RefreshError is returned when a 401 could not be recovered because the
// refresh protocol failed. The original call's failure propagates through it.
type RefreshError struct {
	// Cause is the refresh failure.
	Cause error
}

// Error returns a human-readable description of the refresh failure.
func (e *RefreshError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("token refresh failed: %v", e.Cause)
	}
	return "token refresh failed"
}

// Unwrap returns the underlying refresh failure.
func (e *RefreshError) Unwrap() error { return e.Cause }

// Is reports whether this error matches ErrRefreshFailed.
func (e *RefreshError) Is(target error) bool { return target == ErrRefreshFailed }

// NetworkError is a transport-level failure; the request never produced an
// HTTP response.
type NetworkError struct {
	// Cause is the underlying transport error.
	Cause error
}

// Error returns a human-readable description of the transport failure.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Cause)
}

// Unwrap returns the underlying transport error.
func (e *NetworkError) Unwrap() error { return e.Cause }

// Is reports whether this error matches ErrNetwork.
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ParseError is a malformed response body.
type ParseError struct {
	// Cause is the decode failure.
	Cause error
}

// Error returns a human-readable description of the decode failure.
func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed response: %v", e.Cause)
}

// Unwrap returns the underlying decode failure.
func (e *ParseError) Unwrap() error { return e.Cause }

// Is reports whether this error matches ErrParse.
func (e *ParseError) Is(target error) bool { return target == ErrParse }
