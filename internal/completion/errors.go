package completion

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Common errors
var (
	ErrEmptyMessages = errors.New("messages cannot be empty")
	ErrMissingURL    = errors.New("base URL is required")

	errRateLimitWait = errors.New("rate limiter wait")
)

// retryableStatuses are the HTTP statuses worth another attempt
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// TransportError is returned when the endpoint could not produce a stream,
// either because retries were exhausted or because the failure was not retryable.
type TransportError struct {
	StatusCode int    // 0 when no HTTP response was received
	Body       string // response body, truncated
	Attempts   int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion transport: status %d after %d attempt(s): %s", e.StatusCode, e.Attempts, e.Body)
	}
	return fmt.Sprintf("completion transport: after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError describes an SSE frame whose payload was not valid JSON.
// It is logged by the decoder and never returned to callers.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode sse frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// statusError is a non-2xx response from a single attempt
type statusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body)
}

// isRetryable reports whether a single attempt's error warrants another attempt
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errRateLimitWait) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return retryableStatuses[se.StatusCode]
	}
	// Connection refused, resets, header timeouts
	return true
}

// retryAfter returns the delay requested by err, if any
func retryAfter(err error) time.Duration {
	var se *statusError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// toTransportError converts the final attempt error into a *TransportError
func toTransportError(err error, attempts int) error {
	if err == nil {
		return nil
	}
	te := &TransportError{Attempts: attempts, Err: err}
	var se *statusError
	if errors.As(err, &se) {
		te.StatusCode = se.StatusCode
		te.Body = se.Body
	}
	return te
}
