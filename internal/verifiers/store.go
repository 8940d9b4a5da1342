package verifiers

import (
	"context"
	"time"
)

// Store persists elevation requests, one row per wallet address.
type Store interface {
	// Create inserts a new request. Returns ErrAlreadyPending when the
	// address already has a row.
	Create(ctx context.Context, req *Request) error
	FindByID(ctx context.Context, id string) (*Request, error)
	FindByAddress(ctx context.Context, address string) (*Request, error)
	ListByStatus(ctx context.Context, status Status) ([]*Request, error)
	// Reopen rewrites a decided request with fresh applicant fields and
	// the caller-supplied status.
	Reopen(ctx context.Context, req *Request) error
	// SetDecision moves a pending request to a terminal status. Returns
	// ErrNotPending when the request was already decided.
	SetDecision(ctx context.Context, id string, status Status, note string, decidedAt time.Time) error
	// ApprovedDomain returns the domain of the address's approved request,
	// or the empty string when there is none.
	ApprovedDomain(ctx context.Context, address string) (string, error)
}
