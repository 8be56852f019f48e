package printdesk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrSessionExpired is returned when the refresh cycle failed and the user must log in again.
	ErrSessionExpired = errors.New("session expired")
	// ErrNoRefreshToken is the cause of a session expiry when no refresh token was stored.
	ErrNoRefreshToken = errors.New("no refresh token stored")
	// ErrRefreshRejected is returned when the refresh endpoint answers with a non-2xx status.
	ErrRefreshRejected = errors.New("refresh rejected")
	// ErrRefreshMalformed is returned when a 2xx refresh response carries no access token.
	ErrRefreshMalformed = errors.New("refresh response malformed")
	// ErrRefreshWaitTimeout is returned when a queued request gave up waiting for the in-flight refresh.
	ErrRefreshWaitTimeout = errors.New("refresh wait timeout")
	// ErrClientClosed is returned by calls made after Close.
	ErrClientClosed = errors.New("client closed")
	// ErrResponseTooLarge is returned when a response body exceeds HTTP.MaxResponseBytes.
	ErrResponseTooLarge = errors.New("response body too large")
	// ErrInvalidURL is returned when a request path cannot be resolved to an absolute URL.
	ErrInvalidURL = errors.New("invalid request url")
)

// APIError is a non-success HTTP response surfaced to the caller.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Header     http.Header
	Body       []byte
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "api error %d", e.StatusCode)
	if e.Code != "" {
		b.WriteString(" ")
		b.WriteString(e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// IsUnauthorized reports whether the backend rejected the credential.
func (e *APIError) IsUnauthorized() bool { return e.StatusCode == http.StatusUnauthorized }

// IsForbidden reports a 403.
func (e *APIError) IsForbidden() bool { return e.StatusCode == http.StatusForbidden }

// IsNotFound reports a 404.
func (e *APIError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

type errorEnvelope struct {
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error,omitempty"`
	Detail  any    `json:"detail,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func newAPIError(status int, header http.Header, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Header: header, Body: body}

	var env errorEnvelope
	if len(body) == 0 || json.Unmarshal(body, &env) != nil {
		apiErr.Message = strings.TrimSpace(http.StatusText(status))
		return apiErr
	}

	switch {
	case env.Error != nil:
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	case env.Detail != nil:
		apiErr.Code = env.Code
		if s, ok := env.Detail.(string); ok {
			apiErr.Message = s
		} else {
			apiErr.Message = fmt.Sprint(env.Detail)
		}
	default:
		apiErr.Code = env.Code
		apiErr.Message = env.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// SessionExpiredError is returned to every caller that took part in a failed
// refresh cycle. It matches ErrSessionExpired and, when present, the 401
// *APIError the caller originally received.
type SessionExpiredError struct {
	LoginURL     string
	Unauthorized *APIError
	Cause        error
}

func (e *SessionExpiredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: %v", ErrSessionExpired, e.Cause)
	}
	return ErrSessionExpired.Error()
}

func (e *SessionExpiredError) Unwrap() []error {
	errs := []error{ErrSessionExpired}
	if e.Unauthorized != nil {
		errs = append(errs, e.Unauthorized)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// AsAPIError extracts the *APIError carried by err, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
