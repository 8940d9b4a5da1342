package auth

import "errors"

var (
	// ErrNotAuthenticated covers every credential failure: missing cookie,
	// malformed or expired token, unknown user, bad signature. Handlers must
	// surface all of them identically so callers cannot probe which wallet
	// addresses are registered.
	ErrNotAuthenticated = errors.New("auth: not authenticated")

	// ErrInvalidToken indicates the session token failed validation.
	ErrInvalidToken = errors.New("auth: invalid token")

	ErrInvalidInput = errors.New("auth: invalid input")
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
)
