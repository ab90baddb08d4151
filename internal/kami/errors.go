package kami

import (
	"fmt"
	"net/http"
)

// StatusError is a non-2xx reply from Kami.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Path, e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if sent again.
func (e *StatusError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= http.StatusInternalServerError
}

// APIError is a 2xx reply whose body carries an error, which is how Kami
// reports extrinsics the chain refused.
type APIError struct {
	Path    string
	Details map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s response error: %v", e.Path, e.Details)
}
