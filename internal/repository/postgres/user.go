package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wanderly/identity/internal/domain"
	"github.com/wanderly/identity/pkg/database"
	apperrors "github.com/wanderly/identity/pkg/errors"
)

const userColumns = `id, email, password_hash, name, role, email_verified_at,
	external_provider_id, provider, avatar, theme, language, created_at, updated_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a user repository on a pool or transaction.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := exec(ctx, r.db, "CreateUser", query,
		u.ID,
		u.Email,
		u.PasswordHash,
		u.Name,
		string(u.Role),
		u.EmailVerifiedAt,
		u.ExternalProviderID,
		u.Provider,
		u.Avatar,
		u.Theme,
		u.Language,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(ctx, "GetUserByID", query, id)
}

// GetByEmail retrieves a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(ctx, "GetUserByEmail", query, email)
}

// GetByProvider retrieves the user linked to an external identity.
func (r *UserRepository) GetByProvider(ctx context.Context, provider, providerID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE provider = $1 AND external_provider_id = $2`
	return r.scanUser(ctx, "GetUserByProvider", query, provider, providerID)
}

// LockByID retrieves a user with a row lock held until the transaction ends.
func (r *UserRepository) LockByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	return r.scanUser(ctx, "LockUser", query, id)
}

// Update persists every mutable field of u. UpdatedAt is written as set by
// the caller.
func (r *UserRepository) Update(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE users
		SET email = $1, password_hash = $2, name = $3, role = $4, email_verified_at = $5,
		    external_provider_id = $6, provider = $7, avatar = $8, theme = $9, language = $10,
		    updated_at = $11
		WHERE id = $12`

	ct, err := exec(ctx, r.db, "UpdateUser", query,
		u.Email,
		u.PasswordHash,
		u.Name,
		string(u.Role),
		u.EmailVerifiedAt,
		u.ExternalProviderID,
		u.Provider,
		u.Avatar,
		u.Theme,
		u.Language,
		u.UpdatedAt,
		u.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "external identity", u.Provider)
		}
		return fmt.Errorf("update user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", u.ID)
	}
	return nil
}

// Delete removes a user. Codes and refresh tokens cascade.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	ct, err := exec(ctx, r.db, "DeleteUser", `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}
	return nil
}

func (r *UserRepository) scanUser(ctx context.Context, op, query string, args ...any) (*domain.User, error) {
	var (
		u    domain.User
		role string
	)

	err := scanRow(ctx, r.db, op, query, args,
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Name,
		&role,
		&u.EmailVerifiedAt,
		&u.ExternalProviderID,
		&u.Provider,
		&u.Avatar,
		&u.Theme,
		&u.Language,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	u.Role = domain.Role(role)
	return &u, nil
}
