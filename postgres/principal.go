package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dhirajgiri3/authcore"
)

var _ authcore.PrincipalStore = (*PrincipalRepository)(nil)

// ErrPrincipalNotFound is returned when no row matches the lookup.
var ErrPrincipalNotFound = errors.New("principal not found")

// PrincipalRepository implements authcore.PrincipalStore on top of the
// principals table.
type PrincipalRepository struct {
	db *Connection
}

func NewPrincipalRepository(db *Connection) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

const principalColumns = `id, identifier, password_hash, role, token_version, mfa_method, mfa_secret, mfa_status, phone`

func (r *PrincipalRepository) scanPrincipal(row pgx.Row) (*authcore.PrincipalRecord, error) {
	var p authcore.PrincipalRecord
	err := row.Scan(
		&p.ID, &p.Identifier, &p.PasswordHash, &p.Role, &p.TokenVersion,
		&p.MFAMethod, &p.MFASecret, &p.MFAStatus, &p.Phone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to scan principal: %w", err)
	}
	return &p, nil
}

func (r *PrincipalRepository) GetByID(ctx context.Context, id string) (*authcore.PrincipalRecord, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE id = $1`
	return r.scanPrincipal(r.db.QueryRow(ctx, query, id))
}

func (r *PrincipalRepository) GetByIdentifier(ctx context.Context, identifier string) (*authcore.PrincipalRecord, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE identifier = $1`
	return r.scanPrincipal(r.db.QueryRow(ctx, query, identifier))
}

// Create inserts a new principal record. Token version starts at 1.
func (r *PrincipalRepository) Create(ctx context.Context, p authcore.PrincipalRecord) error {
	query := `INSERT INTO principals (id, identifier, password_hash, role, token_version, mfa_method, mfa_secret, mfa_status, phone)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if p.TokenVersion == 0 {
		p.TokenVersion = 1
	}
	if p.MFAMethod == "" {
		p.MFAMethod = authcore.MFANone
	}
	if p.MFAStatus == "" {
		p.MFAStatus = authcore.MFAInactive
	}

	_, err := r.db.Exec(ctx, query,
		p.ID, p.Identifier, p.PasswordHash, p.Role, p.TokenVersion,
		p.MFAMethod, p.MFASecret, p.MFAStatus, p.Phone,
	)
	if err != nil {
		return fmt.Errorf("failed to create principal: %w", err)
	}
	return nil
}

func (r *PrincipalRepository) UpdatePasswordHash(ctx context.Context, id, newHash string) error {
	query := `UPDATE principals SET password_hash = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, newHash)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

// BumpTokenVersion increments atomically in SQL so concurrent bumps
// from different instances never collapse into one.
func (r *PrincipalRepository) BumpTokenVersion(ctx context.Context, id string) (int64, error) {
	query := `UPDATE principals SET token_version = token_version + 1, updated_at = NOW()
			  WHERE id = $1 RETURNING token_version`

	var version int64
	err := r.db.QueryRow(ctx, query, id).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrPrincipalNotFound
		}
		return 0, fmt.Errorf("failed to bump token version: %w", err)
	}
	return version, nil
}

func (r *PrincipalRepository) SetMFAEnrollment(ctx context.Context, id string, method authcore.MFAMethod, secret string, status authcore.MFAStatus) error {
	query := `UPDATE principals SET mfa_method = $2, mfa_secret = $3, mfa_status = $4, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, method, secret, status)
	if err != nil {
		return fmt.Errorf("failed to set mfa enrollment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

func (r *PrincipalRepository) SetMFAStatus(ctx context.Context, id string, status authcore.MFAStatus) error {
	query := `UPDATE principals SET mfa_status = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to set mfa status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}
