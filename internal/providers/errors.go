package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNoDetections is returned when a provider answers without any fields.
	ErrNoDetections = errors.New("no fields detected")
	// ErrEmptyDocument is returned for documents with no bytes.
	ErrEmptyDocument = errors.New("empty document")
)

// ExtractionError wraps any failure to extract a document.
type ExtractionError struct {
	Document string
	Provider string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: extracting %s: %v", e.Provider, e.Document, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// RateLimitError marks a rejected request that may be retried after
// RetryAfter (zero when the provider gave no hint).
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimitError reports whether err is or wraps a *RateLimitError.
func IsRateLimitError(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// RetryAfter returns the provider's retry hint carried by err, if any.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// parseRetryAfter reads a Retry-After header in delta-seconds or HTTP-date
// form. Unparseable or past values yield zero.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// rateLimited builds a RateLimitError from a 429 response header.
func rateLimited(provider string, header http.Header, detail string) *RateLimitError {
	msg := provider + " rate limited"
	if detail != "" {
		msg += ": " + detail
	}
	return &RateLimitError{
		Message:    msg,
		RetryAfter: parseRetryAfter(header.Get("Retry-After")),
		StatusCode: http.StatusTooManyRequests,
	}
}
