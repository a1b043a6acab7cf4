package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wanderly/identity/internal/domain"
	"github.com/wanderly/identity/pkg/database"
	apperrors "github.com/wanderly/identity/pkg/errors"
)

// RefreshTokenRepository implements repository.RefreshTokenRepository.
type RefreshTokenRepository struct {
	db database.DBTX
}

// NewRefreshTokenRepository creates a refresh token repository.
func NewRefreshTokenRepository(db database.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a new refresh token record.
func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := exec(ctx, r.db, "CreateRefreshToken", query,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.RevokedAt, t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("refresh token", "id", t.ID)
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetForUpdate loads a record by id and locks it.
func (r *RefreshTokenRepository) GetForUpdate(ctx context.Context, id string) (*domain.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, revoked_at, created_at
		FROM refresh_tokens
		WHERE id = $1
		FOR UPDATE`

	var t domain.RefreshToken
	err := scanRow(ctx, r.db, "GetRefreshToken", query, []any{id},
		&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return &t, nil
}

// Revoke closes a record only if it is still open.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `UPDATE refresh_tokens SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`

	ct, err := exec(ctx, r.db, "RevokeRefreshToken", query, id, at)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// RevokeAllForUser closes every open record for the user.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`

	ct, err := exec(ctx, r.db, "RevokeUserRefreshTokens", query, userID, at)
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}
