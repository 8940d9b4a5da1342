package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ UserStore = (*PGStore)(nil)

// PGStore implements UserStore using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Find(ctx context.Context, address string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select wallet_address, nonce, is_approved, created_at, updated_at
		 from users where wallet_address = $1`, address)
	var u User
	if err := row.Scan(&u.Address, &u.Nonce, &u.IsApproved, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *PGStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		`insert into users(wallet_address, nonce, is_approved) values($1, $2, $3)`,
		u.Address, u.Nonce, u.IsApproved)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *PGStore) UpdateNonce(ctx context.Context, address, nonce string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set nonce = $2, updated_at = now() where wallet_address = $1`,
		address, nonce)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) SetApproved(ctx context.Context, address string, approved bool) error {
	// Upserts so a direct admin approval works before the wallet ever logged in.
	_, err := s.db.ExecContext(ctx,
		`insert into users(wallet_address, nonce, is_approved)
		 values($1, '', $2)
		 on conflict (wallet_address) do update set is_approved = excluded.is_approved, updated_at = now()`,
		address, approved)
	return err
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

// isUniqueViolation reports a Postgres duplicate-key error (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
