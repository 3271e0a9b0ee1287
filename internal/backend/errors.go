package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Backend errors.
var (
	// ErrBackendUnavailable is returned after the retry schedule is
	// exhausted without a successful call.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrUnauthorized is returned when the backend explicitly rejects the
	// caller's credentials or token. Never retried.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict is returned when the backend rejects a registration for
	// an identity that already exists. Never retried.
	ErrConflict = errors.New("already exists")
)

// StatusError is a non-2xx HTTP response from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Body)
}

// Retryable reports whether an error is transient: a timeout, a connection
// failure, a 5xx, or a rate limit. Explicit 4xx rejections are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrConflict) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == 429
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		// Connection refused, DNS failure, reset: all transport-level.
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}

// Transport reports whether an error is a network/transport failure, as
// opposed to an explicit response from the backend. The session manager
// only falls back to offline mode on transport failures.
func Transport(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return false
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrConflict) {
		return false
	}
	return true
}
