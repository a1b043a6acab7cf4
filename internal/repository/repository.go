package repository

import (
	"context"
	"time"

	"github.com/wanderly/identity/internal/domain"
)

// Implementations report a missing row with apperrors.ErrNotFound and a
// unique-key collision with apperrors.ErrAlreadyExists.

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by id.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by normalized email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetByProvider retrieves a user linked to an external identity.
	GetByProvider(ctx context.Context, provider, providerID string) (*domain.User, error)

	// LockByID retrieves a user and holds a row lock until the surrounding
	// transaction ends, serializing concurrent flows for the same account.
	LockByID(ctx context.Context, id string) (*domain.User, error)

	// Update persists every mutable field of user.
	Update(ctx context.Context, user *domain.User) error

	// Delete removes a user; codes and refresh tokens go with it.
	Delete(ctx context.Context, id string) error
}

// CodeRepository stores verification codes of a single purpose.
type CodeRepository interface {
	// Latest returns the most recently created code for the user.
	Latest(ctx context.Context, userID string) (*domain.VerificationCode, error)

	// Create inserts a new code.
	Create(ctx context.Context, code *domain.VerificationCode) error

	// DeleteForUser removes every code the user holds.
	DeleteForUser(ctx context.Context, userID string) error

	// IncrementAttempts adds one failed attempt to the code.
	IncrementAttempts(ctx context.Context, id string) error

	// MarkConsumed closes the code.
	MarkConsumed(ctx context.Context, id string, at time.Time) error
}

// RefreshTokenRepository stores hashed refresh tokens.
type RefreshTokenRepository interface {
	// Create stores a new refresh token record.
	Create(ctx context.Context, token *domain.RefreshToken) error

	// GetForUpdate loads a record by id and locks it for the transaction.
	GetForUpdate(ctx context.Context, id string) (*domain.RefreshToken, error)

	// Revoke closes a record that is still open. It reports false when the
	// record is missing or was already revoked.
	Revoke(ctx context.Context, id string, at time.Time) (bool, error)

	// RevokeAllForUser closes every open record for the user and returns how
	// many were closed.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
}

// Store groups the repositories that share one connection or transaction.
type Store interface {
	Users() UserRepository
	Codes(purpose domain.CodePurpose) CodeRepository
	RefreshTokens() RefreshTokenRepository
}

// Transactor is a Store that can also run a function atomically. Changes made
// through tx are committed only when fn returns nil.
type Transactor interface {
	Store
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
