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

const codeColumns = `id, user_id, code_hash, expires_at, attempts, sent_count, last_sent_at, consumed_at, created_at`

var codeTables = map[domain.CodePurpose]string{
	domain.PurposeEmailVerification: "email_verification_codes",
	domain.PurposePasswordReset:     "password_reset_codes",
}

// CodeRepository implements repository.CodeRepository for one purpose.
type CodeRepository struct {
	db      database.DBTX
	purpose domain.CodePurpose
	table   string
}

// NewCodeRepository creates a code repository. It panics on an unknown
// purpose since the table name is interpolated into SQL.
func NewCodeRepository(db database.DBTX, purpose domain.CodePurpose) *CodeRepository {
	table, ok := codeTables[purpose]
	if !ok {
		panic(fmt.Sprintf("postgres: unknown code purpose %q", purpose))
	}
	return &CodeRepository{db: db, purpose: purpose, table: table}
}

// Latest returns the newest code for the user.
func (r *CodeRepository) Latest(ctx context.Context, userID string) (*domain.VerificationCode, error) {
	query := `SELECT ` + codeColumns + ` FROM ` + r.table + `
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	c := domain.VerificationCode{Purpose: r.purpose}
	err := scanRow(ctx, r.db, "LatestCode", query, []any{userID},
		&c.ID,
		&c.UserID,
		&c.CodeHash,
		&c.ExpiresAt,
		&c.Attempts,
		&c.SentCount,
		&c.LastSentAt,
		&c.ConsumedAt,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get latest %s code: %w", r.purpose, err)
	}
	return &c, nil
}

// Create inserts a new code.
func (r *CodeRepository) Create(ctx context.Context, c *domain.VerificationCode) error {
	query := `INSERT INTO ` + r.table + ` (` + codeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := exec(ctx, r.db, "CreateCode", query,
		c.ID,
		c.UserID,
		c.CodeHash,
		c.ExpiresAt,
		c.Attempts,
		c.SentCount,
		c.LastSentAt,
		c.ConsumedAt,
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert %s code: %w", r.purpose, err)
	}
	return nil
}

// DeleteForUser removes every code the user holds for this purpose.
func (r *CodeRepository) DeleteForUser(ctx context.Context, userID string) error {
	if _, err := exec(ctx, r.db, "DeleteCodes", `DELETE FROM `+r.table+` WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete %s codes: %w", r.purpose, err)
	}
	return nil
}

// IncrementAttempts records one failed comparison.
func (r *CodeRepository) IncrementAttempts(ctx context.Context, id string) error {
	query := `UPDATE ` + r.table + ` SET attempts = attempts + 1 WHERE id = $1`

	ct, err := exec(ctx, r.db, "IncrementCodeAttempts", query, id)
	if err != nil {
		return fmt.Errorf("increment %s code attempts: %w", r.purpose, err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// MarkConsumed closes an open code.
func (r *CodeRepository) MarkConsumed(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE ` + r.table + ` SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL`

	ct, err := exec(ctx, r.db, "ConsumeCode", query, id, at)
	if err != nil {
		return fmt.Errorf("consume %s code: %w", r.purpose, err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
