package verifiers

import "errors"

var (
	ErrInvalidInput = errors.New("verifiers: invalid input")
	ErrNotFound     = errors.New("verifiers: request not found")
	ErrForbidden    = errors.New("verifiers: forbidden")

	// ErrAlreadyPending reports a wallet that already has an undecided
	// request on file.
	ErrAlreadyPending = errors.New("verifiers: request already pending")

	// ErrAlreadyElevated reports a wallet that already holds the verifier
	// or admin role and has nothing to apply for.
	ErrAlreadyElevated = errors.New("verifiers: already elevated")

	// ErrNotPending reports a decision on a request that has already been
	// decided.
	ErrNotPending = errors.New("verifiers: request already decided")
)
