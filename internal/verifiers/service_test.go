package verifiers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"notara.org/internal/auth"
	"notara.org/internal/ledger"
)

type memStore struct {
	mu   sync.Mutex
	reqs map[string]*Request // keyed by address
}

func newMemStore() *memStore {
	return &memStore{reqs: map[string]*Request{}}
}

func (m *memStore) Create(_ context.Context, req *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reqs[req.Address]; ok {
		return ErrAlreadyPending
	}
	clone := *req
	m.reqs[req.Address] = &clone
	return nil
}

func (m *memStore) FindByID(_ context.Context, id string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, req := range m.reqs {
		if req.ID == id {
			clone := *req
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) FindByAddress(_ context.Context, address string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.reqs[address]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *req
	return &clone, nil
}

func (m *memStore) ListByStatus(_ context.Context, status Status) ([]*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*Request
	for _, req := range m.reqs {
		if req.Status == status {
			clone := *req
			res = append(res, &clone)
		}
	}
	return res, nil
}

func (m *memStore) Reopen(_ context.Context, req *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for addr, existing := range m.reqs {
		if existing.ID == req.ID {
			clone := *req
			m.reqs[addr] = &clone
			return nil
		}
	}
	return ErrNotFound
}

func (m *memStore) SetDecision(_ context.Context, id string, status Status, note string, decidedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, req := range m.reqs {
		if req.ID == id {
			if req.Status != StatusPending {
				return ErrNotPending
			}
			req.Status = status
			req.DecisionNote = note
			req.DecidedAt = &decidedAt
			return nil
		}
	}
	return ErrNotFound
}

func (m *memStore) ApprovedDomain(_ context.Context, address string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.reqs[address]
	if !ok || req.Status != StatusApproved {
		return "", nil
	}
	return req.Domain, nil
}

type stubChain struct {
	grantErr error
	granted  []string
}

func (c *stubChain) GrantVerifier(_ context.Context, address string) (string, error) {
	if c.grantErr != nil {
		return "", c.grantErr
	}
	c.granted = append(c.granted, address)
	return "0xgrant", nil
}

func (c *stubChain) UploadDocumentRoot(context.Context, string, string, string, string, string, *time.Time) (string, error) {
	return "0xupload", nil
}

func (c *stubChain) SetVerificationStatus(context.Context, string, bool) (string, error) {
	return "0xverify", nil
}

func (c *stubChain) RevokeRoot(context.Context, string, string) (string, error) {
	return "0xrevoke", nil
}

type stubApprovals struct {
	approved map[string]bool
}

func (a *stubApprovals) SetApproved(_ context.Context, address string, approved bool) error {
	if a.approved == nil {
		a.approved = map[string]bool{}
	}
	a.approved[address] = approved
	return nil
}

type recordingMailer struct {
	sent []string
}

func (m *recordingMailer) Send(_ context.Context, to, subject, _ string) error {
	m.sent = append(m.sent, to+": "+subject)
	return nil
}

var (
	applicant = auth.Identity{Address: "0xaaaa00000000000000000000000000000000aaaa", Role: ledger.RoleUploader}
	adminID   = auth.Identity{Address: "0xcccc00000000000000000000000000000000cccc", Role: ledger.RoleAdmin}
)

func newFixture(t *testing.T) (*Service, *memStore, *stubChain, *stubApprovals, *recordingMailer) {
	t.Helper()
	store := newMemStore()
	chain := &stubChain{}
	approvals := &stubApprovals{}
	mailer := &recordingMailer{}
	svc := NewService(store, chain, approvals, WithMailer(mailer))
	return svc, store, chain, approvals, mailer
}

func TestSubmitCreatesPendingRequest(t *testing.T) {
	svc, _, _, _, _ := newFixture(t)
	req, err := svc.Submit(context.Background(), applicant, Submission{Name: "Ada", Domain: "Finance", Email: "ada@example.org"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if req.Status != StatusPending || req.Domain != "finance" {
		t.Fatalf("unexpected request: %+v", req)
	}

	if _, err := svc.Submit(context.Background(), applicant, Submission{Name: "Ada", Domain: "finance"}); !errors.Is(err, ErrAlreadyPending) {
		t.Fatalf("expected ErrAlreadyPending, got %v", err)
	}

	elevated := auth.Identity{Address: applicant.Address, Role: ledger.RoleVerifier}
	if _, err := svc.Submit(context.Background(), elevated, Submission{Name: "Ada", Domain: "finance"}); !errors.Is(err, ErrAlreadyElevated) {
		t.Fatalf("expected ErrAlreadyElevated, got %v", err)
	}

	if _, err := svc.Submit(context.Background(), auth.Identity{Address: "0x1", Role: ledger.RoleUploader}, Submission{Name: "Ada"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing domain, got %v", err)
	}
}

func TestApproveGrantsRoleThenMirrors(t *testing.T) {
	svc, store, chain, approvals, mailer := newFixture(t)
	req, err := svc.Submit(context.Background(), applicant, Submission{Name: "Ada", Domain: "finance", Email: "ada@example.org"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	txHash, err := svc.Approve(context.Background(), adminID, req.ID, "looks good")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if txHash != "0xgrant" {
		t.Fatalf("unexpected tx hash: %s", txHash)
	}
	if len(chain.granted) != 1 || chain.granted[0] != applicant.Address {
		t.Fatalf("on-chain grant not recorded: %v", chain.granted)
	}
	if !approvals.approved[applicant.Address] {
		t.Fatalf("approval flag not mirrored")
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected one notification, got %v", mailer.sent)
	}

	domain, err := svc.DomainFor(context.Background(), applicant.Address)
	if err != nil || domain != "finance" {
		t.Fatalf("DomainFor after approval: %q err=%v", domain, err)
	}

	if _, err := svc.Approve(context.Background(), adminID, req.ID, ""); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending on double decision, got %v", err)
	}

	stored, _ := store.FindByID(context.Background(), req.ID)
	if stored.Status != StatusApproved || stored.DecisionNote != "looks good" {
		t.Fatalf("unexpected stored request: %+v", stored)
	}
}

func TestApproveLedgerFailureLeavesRequestPending(t *testing.T) {
	svc, store, chain, approvals, _ := newFixture(t)
	req, err := svc.Submit(context.Background(), applicant, Submission{Name: "Ada", Domain: "finance"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	chain.grantErr = ledger.ErrUnavailable
	if _, err := svc.Approve(context.Background(), adminID, req.ID, ""); !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("expected ledger error, got %v", err)
	}
	stored, _ := store.FindByID(context.Background(), req.ID)
	if stored.Status != StatusPending {
		t.Fatalf("request must stay pending when the ledger grant fails: %+v", stored)
	}
	if approvals.approved[applicant.Address] {
		t.Fatalf("approval flag must not be mirrored on ledger failure")
	}
}

func TestRejectThenResubmitReopens(t *testing.T) {
	svc, _, _, _, mailer := newFixture(t)
	req, err := svc.Submit(context.Background(), applicant, Submission{Name: "Ada", Domain: "finance", Email: "ada@example.org"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := svc.Reject(context.Background(), adminID, req.ID, "incomplete application"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected rejection notification, got %v", mailer.sent)
	}
	if domain, _ := svc.DomainFor(context.Background(), applicant.Address); domain != "" {
		t.Fatalf("rejected request must not grant a domain, got %q", domain)
	}

	reopened, err := svc.Submit(context.Background(), applicant, Submission{Name: "Ada", Domain: "legal"})
	if err != nil {
		t.Fatalf("resubmit after rejection: %v", err)
	}
	if reopened.ID != req.ID {
		t.Fatalf("resubmission must reopen the existing row: %s vs %s", reopened.ID, req.ID)
	}
	if reopened.Status != StatusPending || reopened.Domain != "legal" {
		t.Fatalf("unexpected reopened request: %+v", reopened)
	}
}

func TestListPendingRequiresAdmin(t *testing.T) {
	svc, _, _, _, _ := newFixture(t)
	if _, err := svc.ListPending(context.Background(), applicant); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Submit(context.Background(), applicant, Submission{Name: "Ada", Domain: "finance"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	pending, err := svc.ListPending(context.Background(), adminID)
	if err != nil || len(pending) != 1 {
		t.Fatalf("ListPending: %v (err %v)", pending, err)
	}
}

func TestAddDirectUpsertsApproved(t *testing.T) {
	svc, _, chain, approvals, _ := newFixture(t)
	address := "0xFFFF00000000000000000000000000000000FFFF"

	txHash, err := svc.AddDirect(context.Background(), adminID, address, "Grace", "Legal")
	if err != nil {
		t.Fatalf("AddDirect: %v", err)
	}
	if txHash != "0xgrant" || len(chain.granted) != 1 {
		t.Fatalf("unexpected grant: %s %v", txHash, chain.granted)
	}

	canonical := auth.CanonicalAddress(address)
	if !approvals.approved[canonical] {
		t.Fatalf("approval flag not set for %s", canonical)
	}
	if domain, _ := svc.DomainFor(context.Background(), canonical); domain != "legal" {
		t.Fatalf("expected legal domain, got %q", domain)
	}

	// Re-adding moves the wallet to a new domain in place.
	if _, err := svc.AddDirect(context.Background(), adminID, address, "Grace", "finance"); err != nil {
		t.Fatalf("second AddDirect: %v", err)
	}
	if domain, _ := svc.DomainFor(context.Background(), canonical); domain != "finance" {
		t.Fatalf("expected finance domain after re-add, got %q", domain)
	}

	if _, err := svc.AddDirect(context.Background(), applicant, address, "Grace", "legal"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-admin, got %v", err)
	}
	if _, err := svc.AddDirect(context.Background(), adminID, "not-an-address", "Grace", "legal"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
