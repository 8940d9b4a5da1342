package docs

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

func (s *PGStore) CreateRoot(ctx context.Context, root *DocumentRoot) error {
	if len(root.Versions) == 0 {
		return ErrInvalidInput
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`insert into document_roots(root_hash, uploader_address, domain, title, description, revoked, tx_hash, expires_at, created_at)
		 values($1,$2,$3,$4,$5,false,$6,$7,$8)`,
		root.RootHash, root.Uploader, root.Domain, root.Title, root.Description,
		root.TxHash, root.ExpiresAt, root.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	for i := range root.Versions {
		v := &root.Versions[i]
		_, err = tx.ExecContext(ctx,
			`insert into document_versions(version_hash, root_hash, file_cid, meta_cid, file_name, file_type, iv_base64, verified, verifier, uploaded_at)
			 values($1,$2,$3,$4,$5,$6,$7,false,null,$8)`,
			v.Hash, root.RootHash, v.FileCID, v.MetaCID, v.FileName, v.FileType, v.IVBase64, v.UploadedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *PGStore) ExistsRoot(ctx context.Context, rootHash string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from document_roots where root_hash=$1)`, rootHash,
	).Scan(&exists)
	return exists, err
}

func (s *PGStore) FindRootByVersion(ctx context.Context, versionHash string) (*DocumentRoot, error) {
	row := s.db.QueryRowContext(ctx,
		`select r.root_hash, r.uploader_address, r.domain, r.title, r.description, r.revoked, r.tx_hash, r.expires_at, r.created_at
		 from document_roots r
		 join document_versions v on v.root_hash = r.root_hash
		 where v.version_hash=$1`, versionHash)
	root, err := scanRoot(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadVersions(ctx, root); err != nil {
		return nil, err
	}
	return root, nil
}

func (s *PGStore) ListPending(ctx context.Context, domain string, now time.Time) ([]PendingDoc, error) {
	query := `select r.root_hash, r.title, r.domain, v.version_hash, v.meta_cid
		 from document_roots r
		 join document_versions v on v.root_hash = r.root_hash
		 where not v.verified and not r.revoked
		   and (r.expires_at is null or r.expires_at > $1)`
	args := []any{now}
	if domain != "" {
		query += ` and r.domain = $2`
		args = append(args, domain)
	}
	query += ` order by r.created_at asc, v.uploaded_at asc`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		res   []PendingDoc
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			rootHash, title, dom string
			version              PendingVersion
		)
		if err := rows.Scan(&rootHash, &title, &dom, &version.Hash, &version.CID); err != nil {
			return nil, err
		}
		i, ok := index[rootHash]
		if !ok {
			i = len(res)
			index[rootHash] = i
			res = append(res, PendingDoc{RootHash: rootHash, Title: title, Domain: dom})
		}
		res[i].Versions = append(res[i].Versions, version)
	}
	return res, rows.Err()
}

func (s *PGStore) ListByUploader(ctx context.Context, address string) ([]DocumentRoot, error) {
	rows, err := s.db.QueryContext(ctx,
		`select root_hash, uploader_address, domain, title, description, revoked, tx_hash, expires_at, created_at
		 from document_roots where uploader_address=$1 order by created_at desc`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []DocumentRoot
	for rows.Next() {
		root, err := scanRoot(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *root)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if err := s.loadVersions(ctx, &res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (s *PGStore) SetVersionStatus(ctx context.Context, versionHash string, verified bool, verifier string) error {
	res, err := s.db.ExecContext(ctx,
		`update document_versions set verified=$2, verifier=$3, verified_at=case when $2 then now() else null end
		 where version_hash=$1`,
		versionHash, verified, nullable(verifier),
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) MarkRevoked(ctx context.Context, rootHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update document_roots set revoked=true where root_hash=$1`, rootHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) loadVersions(ctx context.Context, root *DocumentRoot) error {
	rows, err := s.db.QueryContext(ctx,
		`select version_hash, file_cid, meta_cid, file_name, file_type, iv_base64, verified, verifier, uploaded_at, verified_at
		 from document_versions where root_hash=$1 order by uploaded_at asc`, root.RootHash)
	if err != nil {
		return err
	}
	defer rows.Close()

	root.Versions = root.Versions[:0]
	for rows.Next() {
		var (
			v        Version
			verifier sql.NullString
		)
		if err := rows.Scan(&v.Hash, &v.FileCID, &v.MetaCID, &v.FileName, &v.FileType,
			&v.IVBase64, &v.Verified, &verifier, &v.UploadedAt, &v.VerifiedAt); err != nil {
			return err
		}
		v.Verifier = verifier.String
		root.Versions = append(root.Versions, v)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoot(row rowScanner) (*DocumentRoot, error) {
	var (
		root   DocumentRoot
		txHash sql.NullString
	)
	err := row.Scan(&root.RootHash, &root.Uploader, &root.Domain, &root.Title,
		&root.Description, &root.Revoked, &txHash, &root.ExpiresAt, &root.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	root.TxHash = txHash.String
	return &root, nil
}

var _ KeyStore = (*PGKeyStore)(nil)

// PGKeyStore implements KeyStore using PostgreSQL. Insert-only: the custody
// table has no update or delete statement anywhere in the codebase.
type PGKeyStore struct {
	db *sql.DB
}

func NewPGKeyStore(db *sql.DB) *PGKeyStore {
	return &PGKeyStore{db: db}
}

func (s *PGKeyStore) Create(ctx context.Context, rec *KeyRecord) error {
	_, err := s.db.ExecContext(ctx,
		`insert into key_records(version_hash, aes_key_base64, iv_base64, uploader_address)
		 values($1,$2,$3,$4)`,
		rec.VersionHash, rec.AESKeyBase64, rec.IVBase64, rec.Uploader,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *PGKeyStore) Find(ctx context.Context, versionHash string) (*KeyRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`select version_hash, aes_key_base64, iv_base64, uploader_address, created_at
		 from key_records where version_hash=$1`, versionHash)
	var rec KeyRecord
	if err := row.Scan(&rec.VersionHash, &rec.AESKeyBase64, &rec.IVBase64, &rec.Uploader, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
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
