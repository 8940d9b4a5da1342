package ledger

import (
	"context"
	"errors"
	"time"
)

// Role is the application-level role derived from on-chain membership.
type Role string

const (
	RoleUploader Role = "uploader"
	RoleVerifier Role = "verifier"
	RoleAdmin    Role = "admin"
)

// Root mirrors the on-chain record for one document root.
type Root struct {
	RootHash    string     `json:"rootHash"`
	Uploader    string     `json:"uploader"`
	Domain      string     `json:"domain"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Revoked     bool       `json:"revoked"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Versions    []string   `json:"versions"`
}

// Version mirrors the on-chain record for one document version.
type Version struct {
	Hash       string    `json:"hash"`
	CID        string    `json:"cid"`
	Verified   bool      `json:"verified"`
	Verifier   string    `json:"verifier,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Reader exposes the read-only contract surface.
type Reader interface {
	// RoleOf resolves on-chain role membership for an address: admin wins
	// over verifier; everything else is the base uploader role.
	RoleOf(ctx context.Context, address string) (Role, error)
	GetRoot(ctx context.Context, rootHash string) (Root, error)
	GetVersion(ctx context.Context, versionHash string) (Version, error)
}

// Writer exposes state-changing contract calls signed by the service
// operator key. Every call waits for on-chain finality before returning.
type Writer interface {
	GrantVerifier(ctx context.Context, address string) (txHash string, err error)
	UploadDocumentRoot(ctx context.Context, rootHash, metaCID, domain, title, description string, expiresAt *time.Time) (txHash string, err error)
	SetVerificationStatus(ctx context.Context, versionHash string, verified bool) (txHash string, err error)
	RevokeRoot(ctx context.Context, rootHash, reason string) (txHash string, err error)
}

// Client is the full contract surface.
type Client interface {
	Reader
	Writer
}

var (
	ErrNotFound    = errors.New("ledger: not found")
	ErrUnavailable = errors.New("ledger: rpc unavailable")
	ErrNoSigner    = errors.New("ledger: operator signer not configured")
	ErrTxFailed    = errors.New("ledger: transaction reverted")
)
