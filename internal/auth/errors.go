package auth

import "errors"

// Session/auth errors.
var (
	// ErrInvalidCredentials is returned when the backend explicitly rejects
	// a login or when offline validation finds no matching record.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAlreadyRegistered is returned when the identity exists remotely
	// or locally.
	ErrAlreadyRegistered = errors.New("identity already registered")

	// ErrSessionExpired is returned when a request needs a live session
	// and the persisted one has passed its expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrNoSession is returned when no session is persisted at all.
	ErrNoSession = errors.New("no active session")
)
