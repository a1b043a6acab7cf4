// Package session persists refresh tokens and enforces single-use rotation.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wanderly/identity/internal/domain"
	"github.com/wanderly/identity/internal/repository"
	apperrors "github.com/wanderly/identity/pkg/errors"
)

// Hasher hashes and checks secrets.
type Hasher interface {
	Hash(ctx context.Context, secret string) (string, error)
	Verify(ctx context.Context, secret, digest string) bool
}

// Presented is a refresh token as the client handed it over: the signed value
// and the id and subject taken from its verified claims.
type Presented struct {
	TokenID string
	UserID  string
	Value   string
}

// New describes a token about to be persisted.
type New struct {
	TokenID   string
	UserID    string
	Value     string
	ExpiresAt time.Time
}

// Store is the refresh token store. Like the code manager it acts on the
// repository.Store it is handed.
type Store struct {
	hasher Hasher
	now    func() time.Time
}

// NewStore creates a Store. now may be nil.
func NewStore(hasher Hasher, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{hasher: hasher, now: now}
}

// Issue persists a hash of t.Value.
func (s *Store) Issue(ctx context.Context, store repository.Store, t New) error {
	digest, err := s.hasher.Hash(ctx, t.Value)
	if err != nil {
		return fmt.Errorf("hash refresh token: %w", err)
	}
	return store.RefreshTokens().Create(ctx, &domain.RefreshToken{
		ID:        t.TokenID,
		UserID:    t.UserID,
		TokenHash: digest,
		ExpiresAt: t.ExpiresAt,
		CreatedAt: s.now().UTC(),
	})
}

// active loads and checks the presented token. Anything other than an open,
// unexpired record owned by the presenter with a matching hash is
// domain.ErrRefreshTokenNotFoundOrRevoked.
func (s *Store) active(ctx context.Context, store repository.Store, p Presented) (*domain.RefreshToken, error) {
	record, err := store.RefreshTokens().GetForUpdate(ctx, p.TokenID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrRefreshTokenNotFoundOrRevoked
		}
		return nil, fmt.Errorf("load refresh token: %w", err)
	}

	if domain.StateOf(record, s.now().UTC()) != domain.StateActive || record.UserID != p.UserID {
		return nil, domain.ErrRefreshTokenNotFoundOrRevoked
	}
	if !s.hasher.Verify(ctx, p.Value, record.TokenHash) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, domain.ErrRefreshTokenNotFoundOrRevoked
	}
	return record, nil
}

// Rotate revokes old and persists next. Both writes go through store, so
// they commit or roll back together. A token that was already rotated fails,
// which is how replays are detected.
func (s *Store) Rotate(ctx context.Context, store repository.Store, old Presented, next New) error {
	record, err := s.active(ctx, store, old)
	if err != nil {
		return err
	}

	revoked, err := store.RefreshTokens().Revoke(ctx, record.ID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if !revoked {
		return domain.ErrRefreshTokenNotFoundOrRevoked
	}

	return s.Issue(ctx, store, next)
}

// Revoke closes the presented token. Unknown, revoked or mismatched tokens
// are ignored.
func (s *Store) Revoke(ctx context.Context, store repository.Store, p Presented) error {
	record, err := s.active(ctx, store, p)
	if err != nil {
		if errors.Is(err, domain.ErrRefreshTokenNotFoundOrRevoked) {
			return nil
		}
		return err
	}
	if _, err := store.RefreshTokens().Revoke(ctx, record.ID, s.now().UTC()); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAll closes every open token the user holds. Calling it again is a
// no-op.
func (s *Store) RevokeAll(ctx context.Context, store repository.Store, userID string) (int64, error) {
	n, err := store.RefreshTokens().RevokeAllForUser(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return n, nil
}
