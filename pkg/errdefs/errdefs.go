package errdefs

import (
	"errors"
	"net/http"
)

// Sentinel errors for the engine. Callers classify failures with
// errors.Is so wrapped context (fmt.Errorf + %w) survives the trip up
// the stack.
var (
	// ErrUnauthenticated means no valid caller identity was presented.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the identity is valid but lacks the role, or is
	// banned, for the attempted action.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound means a referenced user, group, membership or message
	// does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidReference means a reply-to targets a missing message or a
	// message in a different group.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrUnavailable means durable storage could not be reached within the
	// bounded retry budget. The write must not be assumed committed.
	ErrUnavailable = errors.New("storage unavailable")
)

// Status maps an engine error to an HTTP status code. Unknown errors map
// to 500 so nothing leaks a false success.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidReference):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
