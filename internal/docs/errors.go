package docs

import "errors"

var (
	ErrInvalidInput = errors.New("docs: invalid input")
	ErrNotFound     = errors.New("docs: not found")

	// ErrConflict reports a duplicate rootHash. The unique index on the
	// mirror is the real guard; the pre-pin existence check only avoids
	// wasting blob storage.
	ErrConflict = errors.New("docs: document already exists")

	// ErrForbidden reports an authenticated caller without the required
	// role or domain for the operation.
	ErrForbidden = errors.New("docs: forbidden")
)
