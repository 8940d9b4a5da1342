package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"notara.org/internal/ledger"
)

type memUserStore struct {
	mu    sync.Mutex
	users map[string]*User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*User)}
}

func (s *memUserStore) Find(_ context.Context, address string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[address]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *memUserStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Address]; ok {
		return ErrConflict
	}
	copied := *u
	copied.CreatedAt = time.Now().UTC()
	s.users[u.Address] = &copied
	return nil
}

func (s *memUserStore) UpdateNonce(_ context.Context, address, nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[address]
	if !ok {
		return ErrNotFound
	}
	u.Nonce = nonce
	return nil
}

func (s *memUserStore) SetApproved(_ context.Context, address string, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[address]
	if !ok {
		s.users[address] = &User{Address: address, IsApproved: approved}
		return nil
	}
	u.IsApproved = approved
	return nil
}

type stubChain struct {
	roles map[string]ledger.Role
	err   error
}

func (c *stubChain) RoleOf(_ context.Context, address string) (ledger.Role, error) {
	if c.err != nil {
		return "", c.err
	}
	if role, ok := c.roles[address]; ok {
		return role, nil
	}
	return ledger.RoleUploader, nil
}

func (c *stubChain) GetRoot(context.Context, string) (ledger.Root, error) {
	return ledger.Root{}, ledger.ErrNotFound
}

func (c *stubChain) GetVersion(context.Context, string) (ledger.Version, error) {
	return ledger.Version{}, ledger.ErrNotFound
}

func newTestService(t *testing.T, store UserStore, chain ledger.Reader) *Service {
	t.Helper()
	svc, err := NewService(store, chain, []byte("test-secret"))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRequestNonceIdempotent(t *testing.T) {
	svc := newTestService(t, newMemUserStore(), &stubChain{})
	ctx := context.Background()

	first, err := svc.RequestNonce(ctx, "0xAA00000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("RequestNonce: %v", err)
	}
	if first == "" {
		t.Fatal("expected a nonce")
	}
	second, err := svc.RequestNonce(ctx, "0xaa00000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("RequestNonce: %v", err)
	}
	if second != first {
		t.Fatalf("nonce changed before verification: %s vs %s", first, second)
	}
}

func TestRequestNonceRequiresAddress(t *testing.T) {
	svc := newTestService(t, newMemUserStore(), &stubChain{})
	if _, err := svc.RequestNonce(context.Background(), "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestVerifySignatureFlow(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	wallet := CanonicalAddress(crypto.PubkeyToAddress(key.PublicKey).Hex())

	store := newMemUserStore()
	svc := newTestService(t, store, &stubChain{})
	ctx := context.Background()

	nonce, err := svc.RequestNonce(ctx, wallet)
	if err != nil {
		t.Fatalf("RequestNonce: %v", err)
	}

	sig, err := crypto.Sign(personalSignDigest(LoginMessage(nonce)), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	encoded := hexutil.Encode(sig)

	session, err := svc.VerifySignature(ctx, wallet, encoded)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if session.Identity.Address != wallet {
		t.Fatalf("unexpected identity address: %s", session.Identity.Address)
	}
	if session.Identity.Role != ledger.RoleUploader {
		t.Fatalf("expected uploader role, got %s", session.Identity.Role)
	}
	if session.Token == "" {
		t.Fatal("expected a session token")
	}

	// The nonce rotated, so replaying the same signature must fail.
	if _, err := svc.VerifySignature(ctx, wallet, encoded); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected replay to fail, got %v", err)
	}

	// The rotated nonce differs from the consumed one.
	rotated, err := svc.RequestNonce(ctx, wallet)
	if err != nil {
		t.Fatalf("RequestNonce: %v", err)
	}
	if rotated == nonce {
		t.Fatal("nonce did not rotate after successful verification")
	}
}

func TestVerifySignatureWrongKey(t *testing.T) {
	victim, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	attacker, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	wallet := CanonicalAddress(crypto.PubkeyToAddress(victim.PublicKey).Hex())

	store := newMemUserStore()
	svc := newTestService(t, store, &stubChain{})
	ctx := context.Background()

	nonce, err := svc.RequestNonce(ctx, wallet)
	if err != nil {
		t.Fatalf("RequestNonce: %v", err)
	}
	sig, err := crypto.Sign(personalSignDigest(LoginMessage(nonce)), attacker)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := svc.VerifySignature(ctx, wallet, hexutil.Encode(sig)); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}

	// Failed verification must not consume the challenge.
	after, err := svc.RequestNonce(ctx, wallet)
	if err != nil {
		t.Fatalf("RequestNonce: %v", err)
	}
	if after != nonce {
		t.Fatal("nonce rotated on failed verification")
	}
}

func TestVerifySignatureUnknownAddress(t *testing.T) {
	svc := newTestService(t, newMemUserStore(), &stubChain{})
	_, err := svc.VerifySignature(context.Background(), "0xbb00000000000000000000000000000000000002", "0x00")
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestRoleResolutionPrecedence(t *testing.T) {
	const wallet = "0xcc00000000000000000000000000000000000003"

	store := newMemUserStore()
	if err := store.Create(context.Background(), &User{Address: wallet, Nonce: "1"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	// On-chain admin wins regardless of the approval flag.
	chain := &stubChain{roles: map[string]ledger.Role{wallet: ledger.RoleAdmin}}
	svc := newTestService(t, store, chain)

	role, err := svc.resolveRole(context.Background(), wallet, false)
	if err != nil {
		t.Fatalf("resolveRole: %v", err)
	}
	if role != ledger.RoleAdmin {
		t.Fatalf("expected admin, got %s", role)
	}

	// Base on-chain role plus approval upgrades to verifier.
	chain.roles = nil
	role, err = svc.resolveRole(context.Background(), wallet, true)
	if err != nil {
		t.Fatalf("resolveRole: %v", err)
	}
	if role != ledger.RoleVerifier {
		t.Fatalf("expected verifier, got %s", role)
	}

	// Base role, not approved: uploader.
	role, err = svc.resolveRole(context.Background(), wallet, false)
	if err != nil {
		t.Fatalf("resolveRole: %v", err)
	}
	if role != ledger.RoleUploader {
		t.Fatalf("expected uploader, got %s", role)
	}
}

func TestCurrentUserRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	wallet := CanonicalAddress(crypto.PubkeyToAddress(key.PublicKey).Hex())

	store := newMemUserStore()
	svc := newTestService(t, store, &stubChain{})
	ctx := context.Background()

	nonce, err := svc.RequestNonce(ctx, wallet)
	if err != nil {
		t.Fatalf("RequestNonce: %v", err)
	}
	sig, err := crypto.Sign(personalSignDigest(LoginMessage(nonce)), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	session, err := svc.VerifySignature(ctx, wallet, hexutil.Encode(sig))
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}

	id, err := svc.CurrentUser(ctx, session.Token)
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if id.Address != wallet || id.Role != ledger.RoleUploader {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestCurrentUserExpiredToken(t *testing.T) {
	store := newMemUserStore()
	chain := &stubChain{}

	current := time.Now().UTC()
	svc, err := NewService(store, chain, []byte("test-secret"),
		WithSessionTTL(time.Minute),
		WithClock(func() time.Time { return current }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	token, _, err := svc.generateToken("0xdd00000000000000000000000000000000000004")
	if err != nil {
		t.Fatalf("generateToken: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, err := svc.CurrentUser(context.Background(), token); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestNewNonceSize(t *testing.T) {
	seen := make(map[string]struct{})
	for range 32 {
		nonce, err := NewNonce()
		if err != nil {
			t.Fatalf("NewNonce: %v", err)
		}
		if _, dup := seen[nonce]; dup {
			t.Fatalf("duplicate nonce %s", nonce)
		}
		seen[nonce] = struct{}{}
	}
}
