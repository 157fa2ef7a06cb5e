package adapters

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	ErrMissingAPIKey = errors.New("missing api key")
	ErrEmptyPrompt   = errors.New("prompt is empty")
	ErrEmptyModel    = errors.New("model is empty")
)

// APIError is a non-2xx provider HTTP response. Headers are retained so
// callers can honor server guidance such as Retry-After.
type APIError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, string(e.Body))
}

// IsRateLimit reports whether the response was a 429.
func (e *APIError) IsRateLimit() bool { return e.StatusCode == http.StatusTooManyRequests }

// IsInvalidRequest reports whether the response was a 400-class client error.
func (e *APIError) IsInvalidRequest() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

// RetryAfter reads the Retry-After response header (lookup is
// case-insensitive), accepting both delta-seconds and HTTP-date forms.
func (e *APIError) RetryAfter() (time.Duration, bool) {
	if e.Header == nil {
		return 0, false
	}
	raw := e.Header.Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second)), true
	}
	if at, err := http.ParseTime(raw); err == nil {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
