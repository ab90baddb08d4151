package telemetry

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransient wraps every fetch failure. A failed poll yields no samples
	// and is tried again on the next tick.
	ErrTransient = errors.New("transient telemetry error")
	// ErrMalformedPayload is a response body that is not a share batch.
	ErrMalformedPayload = errors.New("malformed telemetry payload")
	// ErrInvalidSample is a decoded record that failed validation.
	ErrInvalidSample = errors.New("invalid share sample")
)

// StatusError is a non-2xx reply from the proxy.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Path, e.StatusCode, e.Body)
}

// Temporary reports whether sending the same request again may succeed.
// Auth failures are not: they need an operator to fix the token.
func (e *StatusError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= http.StatusInternalServerError
}

func (e *StatusError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// retryable reports whether a poll should be retried within the same tick.
func retryable(err error) bool {
	if errors.Is(err, ErrMalformedPayload) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}
