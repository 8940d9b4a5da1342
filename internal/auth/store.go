package auth

import "context"

// UserStore describes persistence operations required by the auth subsystem.
// Addresses passed in are already canonicalized lower-case.
type UserStore interface {
	Find(ctx context.Context, address string) (*User, error)
	Create(ctx context.Context, u *User) error
	UpdateNonce(ctx context.Context, address, nonce string) error
	SetApproved(ctx context.Context, address string, approved bool) error
}
