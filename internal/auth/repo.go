package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnhub/console/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	CreateToken(ctx context.Context, token Token) error
	FindToken(ctx context.Context, hash []byte) (*Token, error)
	DeleteToken(ctx context.Context, hash []byte) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches a login account by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `SELECT id, email, password_hash, is_active FROM staff WHERE lower(email) = lower($1)`, email).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateToken stores a hashed bearer credential.
func (r *PGRepository) CreateToken(ctx context.Context, token Token) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO api_tokens (token_hash, staff_id, created_at, expires_at) VALUES ($1, $2, $3, $4)`,
		token.Hash, token.StaffID, time.Now().UTC(), token.ExpiresAt.UTC())
	return err
}

// FindToken looks up a credential by hash.
func (r *PGRepository) FindToken(ctx context.Context, hash []byte) (*Token, error) {
	token := Token{Hash: hash}
	err := r.pool.QueryRow(ctx, `SELECT staff_id, expires_at FROM api_tokens WHERE token_hash = $1`, hash).
		Scan(&token.StaffID, &token.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &token, nil
}

// DeleteToken revokes a credential.
func (r *PGRepository) DeleteToken(ctx context.Context, hash []byte) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM api_tokens WHERE token_hash = $1`, hash)
	return err
}

// PurgeExpiredTokens deletes credentials that expired before cutoff.
func (r *PGRepository) PurgeExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM api_tokens WHERE expires_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
