package verifiers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"notara.org/internal/auth"
	"notara.org/internal/ids"
	"notara.org/internal/ledger"
	"notara.org/internal/mail"
	"notara.org/internal/obs"
)

// Approvals flips the off-chain approval flag on the user record. Satisfied
// by the auth service.
type Approvals interface {
	SetApproved(ctx context.Context, address string, approved bool) error
}

// Service runs the verifier elevation workflow: wallets apply for a review
// domain, admins decide, approval mirrors the decision to the user record
// and optionally grants the on-chain role.
type Service struct {
	store     Store
	chain     ledger.Writer
	approvals Approvals
	mailer    mail.Sender
	now       func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithMailer attaches the outbound notification sender.
func WithMailer(sender mail.Sender) Option {
	return func(s *Service) {
		if sender != nil {
			s.mailer = sender
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the elevation workflow service.
func NewService(store Store, chain ledger.Writer, approvals Approvals, opts ...Option) *Service {
	s := &Service{
		store:     store,
		chain:     chain,
		approvals: approvals,
		mailer:    mail.Noop{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit files an elevation request for the calling wallet. A wallet with
// an existing decided request reopens it in place; a wallet that is already
// a verifier or admin has nothing to apply for.
func (s *Service) Submit(ctx context.Context, actor auth.Identity, sub Submission) (*Request, error) {
	if actor.Role == ledger.RoleVerifier || actor.Role == ledger.RoleAdmin {
		return nil, ErrAlreadyElevated
	}
	sub.Domain = strings.ToLower(strings.TrimSpace(sub.Domain))
	if sub.Domain == "" {
		return nil, fmt.Errorf("%w: domain is required", ErrInvalidInput)
	}
	if strings.TrimSpace(sub.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	req := &Request{
		ID:           ids.New(),
		Address:      actor.Address,
		Name:         sub.Name,
		Email:        sub.Email,
		Organization: sub.Organization,
		Note:         sub.Note,
		Domain:       sub.Domain,
		Status:       StatusPending,
		RequestedAt:  s.now().UTC(),
	}

	existing, err := s.store.FindByAddress(ctx, actor.Address)
	switch {
	case errors.Is(err, ErrNotFound):
		if err := s.store.Create(ctx, req); err != nil {
			return nil, err
		}
		return req, nil
	case err != nil:
		return nil, err
	}

	if existing.Status == StatusPending {
		return nil, ErrAlreadyPending
	}
	req.ID = existing.ID
	if err := s.store.Reopen(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// StatusFor returns the caller's own request, if any.
func (s *Service) StatusFor(ctx context.Context, actor auth.Identity) (*Request, error) {
	return s.store.FindByAddress(ctx, actor.Address)
}

// ListPending returns undecided requests for the admin review queue.
func (s *Service) ListPending(ctx context.Context, actor auth.Identity) ([]*Request, error) {
	if actor.Role != ledger.RoleAdmin {
		return nil, fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return s.store.ListByStatus(ctx, StatusPending)
}

// Approve grants the on-chain verifier role and then mirrors the decision:
// the request moves to approved and the user's approval flag is set. If the
// ledger grant fails nothing is mirrored. The notification email is best
// effort and never fails the approval.
func (s *Service) Approve(ctx context.Context, actor auth.Identity, id, note string) (string, error) {
	if actor.Role != ledger.RoleAdmin {
		return "", fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	req, err := s.store.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if req.Status != StatusPending {
		return "", ErrNotPending
	}

	txHash, err := s.chain.GrantVerifier(ctx, req.Address)
	if err != nil {
		return "", err
	}
	if err := s.store.SetDecision(ctx, id, StatusApproved, note, s.now().UTC()); err != nil {
		return "", err
	}
	if err := s.approvals.SetApproved(ctx, req.Address, true); err != nil {
		return "", err
	}

	s.notify(ctx, req, "Your verifier request was approved",
		fmt.Sprintf("<p>Hello %s,</p><p>Your request to review documents in the <b>%s</b> domain has been approved. Sign in again to pick up the verifier role.</p>", req.Name, req.Domain))
	return txHash, nil
}

// Reject moves a pending request to rejected and notifies the applicant.
func (s *Service) Reject(ctx context.Context, actor auth.Identity, id, note string) error {
	if actor.Role != ledger.RoleAdmin {
		return fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	req, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if req.Status != StatusPending {
		return ErrNotPending
	}
	if err := s.store.SetDecision(ctx, id, StatusRejected, note, s.now().UTC()); err != nil {
		return err
	}

	body := fmt.Sprintf("<p>Hello %s,</p><p>Your verifier request for the <b>%s</b> domain was not approved.</p>", req.Name, req.Domain)
	if note != "" {
		body += fmt.Sprintf("<p>Reviewer note: %s</p>", note)
	}
	s.notify(ctx, req, "Your verifier request was rejected", body)
	return nil
}

// AddDirect lets an admin elevate a wallet without an application on file:
// an approved request row is created (or the existing one overwritten) so
// domain scoping works, the on-chain role is granted, and the approval flag
// is mirrored.
func (s *Service) AddDirect(ctx context.Context, actor auth.Identity, address, name, domain string) (string, error) {
	if actor.Role != ledger.RoleAdmin {
		return "", fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	address = auth.CanonicalAddress(address)
	domain = strings.ToLower(strings.TrimSpace(domain))
	if !auth.ValidAddress(address) {
		return "", fmt.Errorf("%w: invalid address", ErrInvalidInput)
	}
	if domain == "" {
		return "", fmt.Errorf("%w: domain is required", ErrInvalidInput)
	}

	txHash, err := s.chain.GrantVerifier(ctx, address)
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	req := &Request{
		ID:          ids.New(),
		Address:     address,
		Name:        name,
		Domain:      domain,
		Status:      StatusApproved,
		RequestedAt: now,
		DecidedAt:   &now,
	}
	existing, err := s.store.FindByAddress(ctx, address)
	switch {
	case errors.Is(err, ErrNotFound):
		if err := s.store.Create(ctx, req); err != nil {
			return "", err
		}
	case err != nil:
		return "", err
	default:
		req.ID = existing.ID
		if err := s.store.Reopen(ctx, req); err != nil {
			return "", err
		}
	}
	if err := s.approvals.SetApproved(ctx, address, true); err != nil {
		return "", err
	}
	return txHash, nil
}

// DomainFor resolves the review domain the address was approved for, empty
// when there is none. This is the domain source the document service scopes
// reviewer listings and key release by.
func (s *Service) DomainFor(ctx context.Context, address string) (string, error) {
	return s.store.ApprovedDomain(ctx, address)
}

func (s *Service) notify(ctx context.Context, req *Request, subject, body string) {
	if req.Email == "" {
		return
	}
	if err := s.mailer.Send(ctx, req.Email, subject, body); err != nil {
		obs.LogError("verifier notification failed", err, map[string]any{
			"request_id": req.ID,
		})
	}
}
