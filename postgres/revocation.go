package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dhirajgiri3/authcore/revocation"
)

var _ revocation.DurableStore = (*RevocationRepository)(nil)

// RevocationRepository implements revocation.DurableStore on top of the
// revoked_tokens table.
type RevocationRepository struct {
	db *Connection
}

func NewRevocationRepository(db *Connection) *RevocationRepository {
	return &RevocationRepository{db: db}
}

// Put records a revoked token. Re-revoking the same jti is a no-op, not
// an error: the registry retries writes and two callers may race.
func (r *RevocationRepository) Put(ctx context.Context, rec revocation.Record) error {
	query := `INSERT INTO revoked_tokens (jti, kind, expires_at)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (jti) DO NOTHING`

	if _, err := r.db.Exec(ctx, query, rec.JTI, rec.Kind, rec.ExpiresAt); err != nil {
		return fmt.Errorf("failed to record revocation: %w", err)
	}
	return nil
}

func (r *RevocationRepository) Get(ctx context.Context, jti string) (*revocation.Record, error) {
	query := `SELECT jti, kind, expires_at FROM revoked_tokens WHERE jti = $1`

	var rec revocation.Record
	err := r.db.QueryRow(ctx, query, jti).Scan(&rec.JTI, &rec.Kind, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get revocation record: %w", err)
	}
	return &rec, nil
}

func (r *RevocationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM revoked_tokens WHERE expires_at <= $1`

	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired revocations: %w", err)
	}
	return tag.RowsAffected(), nil
}
