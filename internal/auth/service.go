package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notara.org/internal/ledger"
)

const defaultSessionTTL = time.Hour

// Service implements the wallet challenge-response flow: nonce issuance,
// signature verification, session minting and per-request role resolution.
type Service struct {
	users UserStore
	chain ledger.Reader

	secret     []byte
	sessionTTL time.Duration
	now        func() time.Time
}

// Option configures Service behavior.
type Option func(*Service) error

// WithSessionTTL overrides the session credential lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) error {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the auth service. The secret signs session tokens
// and must be non-empty.
func NewService(users UserStore, chain ledger.Reader, secret []byte, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	if users == nil {
		return nil, errors.New("auth: user store is required")
	}
	if chain == nil {
		return nil, errors.New("auth: ledger reader is required")
	}
	s := &Service{
		users:      users,
		chain:      chain,
		secret:     secret,
		sessionTTL: defaultSessionTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SessionTTL returns the configured credential lifetime. The HTTP layer uses
// it for the cookie max-age so both expirations stay in lockstep.
func (s *Service) SessionTTL() time.Duration { return s.sessionTTL }

// RequestNonce returns the pending challenge for an address, creating the
// user record with a fresh nonce on first contact. Idempotent until the
// challenge is consumed by a successful verification.
func (s *Service) RequestNonce(ctx context.Context, address string) (string, error) {
	address = CanonicalAddress(address)
	if address == "" {
		return "", fmt.Errorf("%w: address is required", ErrInvalidInput)
	}

	user, err := s.users.Find(ctx, address)
	if err == nil {
		// Records upserted by an admin approval carry no challenge yet.
		if user.Nonce == "" {
			nonce, genErr := NewNonce()
			if genErr != nil {
				return "", genErr
			}
			if updErr := s.users.UpdateNonce(ctx, address, nonce); updErr != nil {
				return "", updErr
			}
			return nonce, nil
		}
		return user.Nonce, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	nonce, err := NewNonce()
	if err != nil {
		return "", err
	}
	created := &User{Address: address, Nonce: nonce}
	if err := s.users.Create(ctx, created); err != nil {
		// Two first-contact requests can race; the loser reads the winner's nonce.
		if errors.Is(err, ErrConflict) {
			existing, findErr := s.users.Find(ctx, address)
			if findErr != nil {
				return "", findErr
			}
			return existing.Nonce, nil
		}
		return "", err
	}
	return created.Nonce, nil
}

// VerifySignature checks a signature over the pending challenge, rotates the
// nonce, resolves the caller's role and mints a session credential. Every
// failure surfaces as ErrNotAuthenticated with no state mutated.
func (s *Service) VerifySignature(ctx context.Context, address, signature string) (Session, error) {
	address = CanonicalAddress(address)
	if address == "" || signature == "" {
		return Session{}, ErrNotAuthenticated
	}

	user, err := s.users.Find(ctx, address)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrNotAuthenticated
		}
		return Session{}, err
	}

	if user.Nonce == "" {
		// No challenge outstanding; nothing to verify against.
		return Session{}, ErrNotAuthenticated
	}

	recovered, err := RecoverAddress(LoginMessage(user.Nonce), signature)
	if err != nil {
		return Session{}, ErrNotAuthenticated
	}
	if recovered != address {
		return Session{}, ErrNotAuthenticated
	}

	// Rotate before minting: the same signature must never verify twice.
	next, err := NewNonce()
	if err != nil {
		return Session{}, err
	}
	if err := s.users.UpdateNonce(ctx, address, next); err != nil {
		return Session{}, err
	}

	role, err := s.resolveRole(ctx, address, user.IsApproved)
	if err != nil {
		return Session{}, err
	}
	token, expiresAt, err := s.generateToken(address)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		ExpiresAt: expiresAt,
		Identity:  Identity{Address: address, Role: role, IsApproved: user.IsApproved},
	}, nil
}

// CurrentUser validates a session credential and re-derives the caller's
// role. The role is intentionally never read from the token: membership
// changes made directly on the ledger take effect without re-login.
func (s *Service) CurrentUser(ctx context.Context, token string) (Identity, error) {
	address, err := s.parseToken(token)
	if err != nil {
		return Identity{}, ErrNotAuthenticated
	}

	approved := false
	user, err := s.users.Find(ctx, address)
	switch {
	case err == nil:
		approved = user.IsApproved
	case errors.Is(err, ErrNotFound):
		// A valid token for an unknown address keeps the base role.
	default:
		return Identity{}, err
	}

	role, err := s.resolveRole(ctx, address, approved)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Address: address, Role: role, IsApproved: approved}, nil
}

// resolveRole applies the precedence rule in one place: an elevated on-chain
// role always wins; the off-chain approval flag only upgrades the base role.
func (s *Service) resolveRole(ctx context.Context, address string, isApproved bool) (ledger.Role, error) {
	role, err := s.chain.RoleOf(ctx, address)
	if err != nil {
		return "", err
	}
	if role == ledger.RoleAdmin || role == ledger.RoleVerifier {
		return role, nil
	}
	if isApproved {
		return ledger.RoleVerifier, nil
	}
	return ledger.RoleUploader, nil
}

// SetApproved flips the off-chain approval flag. Consumed by the verifier
// elevation workflow after an admin decision.
func (s *Service) SetApproved(ctx context.Context, address string, approved bool) error {
	return s.users.SetApproved(ctx, CanonicalAddress(address), approved)
}
