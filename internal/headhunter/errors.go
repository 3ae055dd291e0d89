package headhunter

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors returned by the client. Callers match them with errors.Is.
var (
	// ErrCredentialInvalid is returned for 401/403 responses. Never retried.
	ErrCredentialInvalid = errors.New("headhunter credential invalid")
	// ErrRateLimited is returned when the API keeps answering 429.
	ErrRateLimited = errors.New("headhunter rate limit exceeded")
	// ErrTransient marks timeouts, connection failures and 5xx responses.
	ErrTransient = errors.New("headhunter transient failure")
	// ErrUnexpectedStatus is returned for other non-successful responses.
	ErrUnexpectedStatus = errors.New("headhunter unexpected status")
	// ErrMalformedPayload is returned when a response body cannot be decoded.
	ErrMalformedPayload = errors.New("headhunter malformed payload")
)

// StatusError describes a non-successful HTTP response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	RetryAfter time.Duration

	// HasRetryAfter is set when the response carried a usable Retry-After, zero included.
	HasRetryAfter bool

	kind error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: bad status: %s", e.Method, e.URL, e.Status)
}

func (e *StatusError) Unwrap() error {
	return e.kind
}

func newStatusError(resp *http.Response) *StatusError {
	e := &StatusError{
		Method:     resp.Request.Method,
		URL:        redactURL(resp.Request.URL.String()),
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		e.kind = ErrCredentialInvalid
	case resp.StatusCode == http.StatusTooManyRequests:
		e.kind = ErrRateLimited
		e.RetryAfter, e.HasRetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= http.StatusInternalServerError:
		e.kind = ErrTransient
	default:
		e.kind = ErrUnexpectedStatus
	}

	return e
}

// parseRetryAfter accepts both forms of the header: delay seconds and an HTTP date.
// ok is false when the header is absent or unparsable; a date in the past means no delay.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}

	if at, err := http.ParseTime(value); err == nil {
		return max(at.Sub(now), 0), true
	}

	return 0, false
}

// redactURL drops the query string so tokens or personal filters never reach logs.
func redactURL(raw string) string {
	if idx := strings.Index(raw, "?"); idx != -1 {
		return raw[:idx]
	}
	return raw
}
