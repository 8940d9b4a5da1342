package docs

import (
	"context"
	"time"
)

// Store is the Document Ledger Mirror. Writes are idempotent-enough for an
// at-least-once protocol: primary keys double as the unique constraints that
// absorb replays.
type Store interface {
	// CreateRoot inserts a root together with its first version. Returns
	// ErrConflict when the rootHash is already present.
	CreateRoot(ctx context.Context, root *DocumentRoot) error
	ExistsRoot(ctx context.Context, rootHash string) (bool, error)
	// FindRootByVersion locates the root owning a version hash.
	FindRootByVersion(ctx context.Context, versionHash string) (*DocumentRoot, error)
	// ListPending returns non-revoked, non-expired roots that still carry
	// unverified versions. An empty domain means all domains.
	ListPending(ctx context.Context, domain string, now time.Time) ([]PendingDoc, error)
	ListByUploader(ctx context.Context, address string) ([]DocumentRoot, error)
	// SetVersionStatus records a verification decision. Re-toggling is
	// allowed to support corrections.
	SetVersionStatus(ctx context.Context, versionHash string, verified bool, verifier string) error
	// MarkRevoked flips the one-way revoked flag.
	MarkRevoked(ctx context.Context, rootHash string) error
}

// KeyStore is the Key Custody Store: write-once at upload, read gated by
// the authorization layer, never deleted.
type KeyStore interface {
	Create(ctx context.Context, rec *KeyRecord) error
	Find(ctx context.Context, versionHash string) (*KeyRecord, error)
}

// DomainSource resolves the review domain an address is approved for.
// Backed by the verifier request workflow.
type DomainSource interface {
	// DomainFor returns the empty string when the address has no approved
	// verifier request.
	DomainFor(ctx context.Context, address string) (string, error)
}
