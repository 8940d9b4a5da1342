package docs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"notara.org/internal/auth"
	"notara.org/internal/blob"
	"notara.org/internal/ledger"
	"notara.org/internal/stream"
)

// Service governs the document pipeline: pinning, mirror registration,
// reviewer listings, key release and verification-status synchronization.
// Role requirements are enforced per operation against the identity the
// auth layer resolved for this request.
type Service struct {
	store   Store
	keys    KeyStore
	blobs   blob.Store
	chain   ledger.Writer
	domains DomainSource
	events  *stream.Stream
	now     func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithEvents attaches the lifecycle event stream.
func WithEvents(events *stream.Stream) Option {
	return func(s *Service) { s.events = events }
}

// NewService constructs the document service.
func NewService(store Store, keys KeyStore, blobs blob.Store, chain ledger.Writer, domains DomainSource, opts ...Option) *Service {
	s := &Service{
		store:   store,
		keys:    keys,
		blobs:   blobs,
		chain:   chain,
		domains: domains,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PinAndRegister stores the encrypted file and its metadata object in the
// blob store and, when key material accompanies the upload, persists the
// KeyRecord. Callers check Exists first: pinning is not idempotent and a
// duplicate pin wastes storage.
func (s *Service) PinAndRegister(ctx context.Context, actor auth.Identity, req PinRequest) (PinResult, error) {
	if len(req.Content) == 0 {
		return PinResult{}, fmt.Errorf("%w: encrypted file is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.RootHash) == "" {
		return PinResult{}, fmt.Errorf("%w: rootHash is required", ErrInvalidInput)
	}

	fileCID, err := s.blobs.Pin(ctx, req.Content, req.FileName, req.FileType)
	if err != nil {
		return PinResult{}, err
	}

	meta := blobMetadata{
		FileCID:     fileCID,
		RootHash:    req.RootHash,
		IVBase64:    req.IVBase64,
		Title:       req.Title,
		Domain:      req.Domain,
		Description: req.Description,
		FileName:    req.FileName,
		FileType:    req.FileType,
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return PinResult{}, err
	}
	metaCID, err := s.blobs.Pin(ctx, encoded, "metadata.json", "application/json")
	if err != nil {
		return PinResult{}, err
	}

	// The first version's hash equals the root hash, so the key record is
	// keyed by it directly.
	if req.AESKeyBase64 != "" && req.IVBase64 != "" {
		rec := &KeyRecord{
			VersionHash:  req.RootHash,
			AESKeyBase64: req.AESKeyBase64,
			IVBase64:     req.IVBase64,
			Uploader:     actor.Address,
		}
		if err := s.keys.Create(ctx, rec); err != nil && !errors.Is(err, ErrConflict) {
			return PinResult{}, err
		}
	}

	return PinResult{FileCID: fileCID, MetaCID: metaCID}, nil
}

// Exists reports whether a root hash is already registered. Callers use it
// for duplicate detection before pinning; the unique index at finalize time
// remains the authoritative guard against the check/pin race.
func (s *Service) Exists(ctx context.Context, rootHash string) (bool, error) {
	rootHash = strings.TrimSpace(rootHash)
	if rootHash == "" {
		return false, fmt.Errorf("%w: rootHash is required", ErrInvalidInput)
	}
	return s.store.ExistsRoot(ctx, strings.ToLower(rootHash))
}

// FinalizeUpload records the root and its first version in the mirror after
// the caller reports a confirmed ledger transaction. A pinned-but-never-
// finalized upload is an acceptable orphan: it consumes blob storage but
// confers no authority.
func (s *Service) FinalizeUpload(ctx context.Context, actor auth.Identity, req FinalizeRequest) error {
	rootHash := strings.ToLower(strings.TrimSpace(req.RootHash))
	if rootHash == "" || req.FileCID == "" || req.MetaCID == "" {
		return fmt.Errorf("%w: rootHash, fileCid and metaCid are required", ErrInvalidInput)
	}

	now := s.now().UTC()
	root := &DocumentRoot{
		RootHash:    rootHash,
		Uploader:    actor.Address,
		Domain:      req.Domain,
		Title:       req.Title,
		Description: req.Description,
		TxHash:      req.TxHash,
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   now,
		Versions: []Version{{
			Hash:       rootHash,
			FileCID:    req.FileCID,
			MetaCID:    req.MetaCID,
			FileName:   req.FileName,
			FileType:   req.FileType,
			IVBase64:   req.IVBase64,
			UploadedAt: now,
		}},
	}
	if err := s.store.CreateRoot(ctx, root); err != nil {
		return err
	}

	s.publish(stream.DocumentEvent{
		Type:     stream.EventUploaded,
		RootHash: rootHash,
		Domain:   req.Domain,
		Actor:    actor.Address,
	})
	return nil
}

// ListPendingForReviewer surfaces unverified versions awaiting review. A
// verifier sees only their approved domain; an admin sees all domains.
func (s *Service) ListPendingForReviewer(ctx context.Context, actor auth.Identity) ([]PendingDoc, error) {
	domain := ""
	switch actor.Role {
	case ledger.RoleAdmin:
		// Unscoped.
	case ledger.RoleVerifier:
		var err error
		domain, err = s.domains.DomainFor(ctx, actor.Address)
		if err != nil {
			return nil, err
		}
		if domain == "" {
			return nil, fmt.Errorf("%w: no approved review domain", ErrForbidden)
		}
	default:
		return nil, fmt.Errorf("%w: reviewer role required", ErrForbidden)
	}
	return s.store.ListPending(ctx, domain, s.now().UTC())
}

// ReleaseKey hands the symmetric key material for a version to an
// authorized reviewer. This is the trust boundary that keeps "encrypt at
// rest, decrypt only for review" meaningful: the version's root must not be
// revoked, and a verifier must hold the root's domain.
func (s *Service) ReleaseKey(ctx context.Context, actor auth.Identity, versionHash string) (*KeyRecord, error) {
	versionHash = strings.ToLower(strings.TrimSpace(versionHash))
	if versionHash == "" {
		return nil, fmt.Errorf("%w: versionHash is required", ErrInvalidInput)
	}
	if actor.Role != ledger.RoleAdmin && actor.Role != ledger.RoleVerifier {
		return nil, fmt.Errorf("%w: reviewer role required", ErrForbidden)
	}

	root, err := s.store.FindRootByVersion(ctx, versionHash)
	if err != nil {
		return nil, err
	}
	if root.Revoked {
		return nil, fmt.Errorf("%w: document is revoked", ErrForbidden)
	}
	if actor.Role == ledger.RoleVerifier {
		domain, err := s.domains.DomainFor(ctx, actor.Address)
		if err != nil {
			return nil, err
		}
		if domain == "" || domain != root.Domain {
			return nil, fmt.Errorf("%w: document outside review domain", ErrForbidden)
		}
	}

	return s.keys.Find(ctx, versionHash)
}

// SyncVerificationStatus reconciles a verification decision into the mirror
// after the caller committed the matching ledger transaction. The ledger is
// the durable truth; the mirror write is advisory and last-write-wins, so
// the call is safely repeatable.
func (s *Service) SyncVerificationStatus(ctx context.Context, actor auth.Identity, versionHash string, verified bool) error {
	versionHash = strings.ToLower(strings.TrimSpace(versionHash))
	if versionHash == "" {
		return fmt.Errorf("%w: versionHash is required", ErrInvalidInput)
	}
	if actor.Role != ledger.RoleAdmin && actor.Role != ledger.RoleVerifier {
		return fmt.Errorf("%w: reviewer role required", ErrForbidden)
	}

	root, err := s.store.FindRootByVersion(ctx, versionHash)
	if err != nil {
		return err
	}
	if err := s.store.SetVersionStatus(ctx, versionHash, verified, actor.Address); err != nil {
		return err
	}

	eventType := stream.EventVerified
	if !verified {
		eventType = stream.EventRejected
	}
	s.publish(stream.DocumentEvent{
		Type:        eventType,
		RootHash:    root.RootHash,
		VersionHash: versionHash,
		Domain:      root.Domain,
		Actor:       actor.Address,
	})
	return nil
}

// RevokeRoot revokes a document on the ledger and then mirrors the flag.
// The order is load-bearing: if the ledger call fails the mirror must keep
// claiming exactly what the ledger does.
func (s *Service) RevokeRoot(ctx context.Context, actor auth.Identity, rootHash, reason string) (string, error) {
	rootHash = strings.ToLower(strings.TrimSpace(rootHash))
	if rootHash == "" {
		return "", fmt.Errorf("%w: rootHash is required", ErrInvalidInput)
	}
	if actor.Role != ledger.RoleAdmin {
		return "", fmt.Errorf("%w: admin role required", ErrForbidden)
	}

	txHash, err := s.chain.RevokeRoot(ctx, rootHash, reason)
	if err != nil {
		return "", err
	}
	if err := s.store.MarkRevoked(ctx, rootHash); err != nil {
		return "", err
	}

	s.publish(stream.DocumentEvent{
		Type:     stream.EventRevoked,
		RootHash: rootHash,
		Actor:    actor.Address,
	})
	return txHash, nil
}

// ListUploads returns the caller's own roots, newest first.
func (s *Service) ListUploads(ctx context.Context, actor auth.Identity) ([]DocumentRoot, error) {
	return s.store.ListByUploader(ctx, actor.Address)
}

// FetchBlob proxies a gateway read for the given content id.
func (s *Service) FetchBlob(ctx context.Context, cid string) (io.ReadCloser, string, error) {
	return s.blobs.Fetch(ctx, cid)
}

func (s *Service) publish(evt stream.DocumentEvent) {
	if s.events != nil {
		s.events.Publish(evt)
	}
}
