package verifiers

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, req *Request) error {
	_, err := s.db.ExecContext(ctx,
		`insert into verifier_requests(id, wallet_address, name, email, organization, note, domain, status, decision_note, requested_at, decided_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,'',$9,$10)`,
		req.ID, req.Address, req.Name, req.Email, req.Organization, req.Note,
		req.Domain, req.Status, req.RequestedAt, req.DecidedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyPending
	}
	return err
}

func (s *PGStore) FindByID(ctx context.Context, id string) (*Request, error) {
	return s.findWhere(ctx, `id=$1`, id)
}

func (s *PGStore) FindByAddress(ctx context.Context, address string) (*Request, error) {
	return s.findWhere(ctx, `wallet_address=$1`, address)
}

func (s *PGStore) findWhere(ctx context.Context, where string, arg any) (*Request, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, wallet_address, name, email, organization, note, domain, status, decision_note, requested_at, decided_at
		 from verifier_requests where `+where, arg)
	return scanRequest(row)
}

func (s *PGStore) ListByStatus(ctx context.Context, status Status) ([]*Request, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, wallet_address, name, email, organization, note, domain, status, decision_note, requested_at, decided_at
		 from verifier_requests where status=$1 order by requested_at asc`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

func (s *PGStore) Reopen(ctx context.Context, req *Request) error {
	res, err := s.db.ExecContext(ctx,
		`update verifier_requests
		 set name=$2, email=$3, organization=$4, note=$5, domain=$6, status=$7,
		     decision_note='', requested_at=$8, decided_at=$9
		 where id=$1`,
		req.ID, req.Name, req.Email, req.Organization, req.Note,
		req.Domain, req.Status, req.RequestedAt, req.DecidedAt,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) SetDecision(ctx context.Context, id string, status Status, note string, decidedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update verifier_requests set status=$2, decision_note=$3, decided_at=$4
		 where id=$1 and status=$5`,
		id, status, note, decidedAt, StatusPending,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a missing row from an already-decided one.
		if _, err := s.FindByID(ctx, id); err != nil {
			return err
		}
		return ErrNotPending
	}
	return nil
}

func (s *PGStore) ApprovedDomain(ctx context.Context, address string) (string, error) {
	var domain string
	err := s.db.QueryRowContext(ctx,
		`select domain from verifier_requests where wallet_address=$1 and status=$2`,
		address, StatusApproved,
	).Scan(&domain)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return domain, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var (
		req  Request
		note sql.NullString
	)
	err := row.Scan(&req.ID, &req.Address, &req.Name, &req.Email, &req.Organization,
		&req.Note, &req.Domain, &req.Status, &note, &req.RequestedAt, &req.DecidedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	req.DecisionNote = note.String
	return &req, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
