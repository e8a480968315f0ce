package tmdb

import (
	"errors"
	"fmt"
)

// The client maps transport failures to these kinds so callers can react
// without parsing error strings: request handlers surface them as 500s,
// task bodies treat them as retryable.

// ErrTimeout means the request exceeded the client timeout.
var ErrTimeout = errors.New("tmdb: request timed out")

// ErrConnection means the TMDb host could not be reached.
var ErrConnection = errors.New("tmdb: connection failed")

// ErrDecode means TMDb answered 200 but the body was not valid JSON.
var ErrDecode = errors.New("tmdb: invalid JSON response")

// StatusError is an HTTP-level error from TMDb (4xx/5xx), propagated as-is
// with the status code attached.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tmdb: status %d: %s", e.Code, e.Body)
}
