package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderly/identity/internal/domain"
	"github.com/wanderly/identity/internal/repository"
	apperrors "github.com/wanderly/identity/pkg/errors"
)

var _ repository.Transactor = (*DB)(nil)

func strPtr(s string) *string { return &s }

func seedUser(t *testing.T, db *DB, id, email string) *domain.User {
	t.Helper()
	u := &domain.User{ID: id, Email: email, PasswordHash: strPtr("h"), Role: domain.RoleUser}
	require.NoError(t, db.Users().Create(context.Background(), u))
	return u
}

func TestWithTx_CommitPublishesChanges(t *testing.T) {
	db := New()
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx repository.Store) error {
		return tx.Users().Create(ctx, &domain.User{ID: "u-1", Email: "a@b.io", PasswordHash: strPtr("h"), Role: domain.RoleUser})
	})
	require.NoError(t, err)

	got, err := db.Users().GetByEmail(ctx, "a@b.io")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.ID)
}

func TestWithTx_ErrorDiscardsChanges(t *testing.T) {
	db := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Users().Create(ctx, &domain.User{ID: "u-1", Email: "a@b.io", PasswordHash: strPtr("h"), Role: domain.RoleUser}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = db.Users().GetByEmail(ctx, "a@b.io")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestWithTx_CancelledContext(t *testing.T) {
	db := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := db.WithTx(ctx, func(repository.Store) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestUsers_UniqueEmailAndProvider(t *testing.T) {
	db := New()
	ctx := context.Background()
	seedUser(t, db, "u-1", "a@b.io")

	err := db.Users().Create(ctx, &domain.User{ID: "u-2", Email: "a@b.io", PasswordHash: strPtr("h"), Role: domain.RoleUser})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)

	require.NoError(t, db.Users().Create(ctx, &domain.User{ID: "u-3", Email: "c@d.io", Provider: "google", ExternalProviderID: strPtr("g-1"), Role: domain.RoleUser}))
	err = db.Users().Create(ctx, &domain.User{ID: "u-4", Email: "e@f.io", Provider: "google", ExternalProviderID: strPtr("g-1"), Role: domain.RoleUser})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func TestUsers_ReturnedValuesAreCopies(t *testing.T) {
	db := New()
	ctx := context.Background()
	seedUser(t, db, "u-1", "a@b.io")

	got, err := db.Users().GetByID(ctx, "u-1")
	require.NoError(t, err)
	*got.PasswordHash = "tampered"

	again, err := db.Users().GetByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "h", *again.PasswordHash)
}

func TestUsers_RejectsUserWithoutCredentials(t *testing.T) {
	db := New()
	ctx := context.Background()

	err := db.Users().Create(ctx, &domain.User{ID: "u-1", Email: "a@b.io", Role: domain.RoleUser})
	assert.ErrorIs(t, err, domain.ErrInvalidUser)
	_, err = db.Users().GetByID(ctx, "u-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	u := seedUser(t, db, "u-2", "c@d.io")
	u.PasswordHash = nil
	assert.ErrorIs(t, db.Users().Update(ctx, u), domain.ErrInvalidUser)

	stored, err := db.Users().GetByID(ctx, "u-2")
	require.NoError(t, err)
	assert.True(t, stored.HasPassword())
}

func TestUsers_UpdateKeepsCallerTimestamp(t *testing.T) {
	db := New()
	ctx := context.Background()
	u := seedUser(t, db, "u-1", "a@b.io")
	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	u.Name = "Ada"
	u.UpdatedAt = at
	require.NoError(t, db.Users().Update(ctx, u))

	got, err := db.Users().GetByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, at, got.UpdatedAt)
}

func TestCodes_LatestAndPurposeIsolation(t *testing.T) {
	db := New()
	ctx := context.Background()
	seedUser(t, db, "u-1", "a@b.io")
	now := time.Now()

	verify := db.Codes(domain.PurposeEmailVerification)
	require.NoError(t, verify.Create(ctx, &domain.VerificationCode{ID: "c-1", UserID: "u-1", CreatedAt: now}))
	require.NoError(t, verify.Create(ctx, &domain.VerificationCode{ID: "c-2", UserID: "u-1", CreatedAt: now}))

	latest, err := verify.Latest(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "c-2", latest.ID)

	_, err = db.Codes(domain.PurposePasswordReset).Latest(ctx, "u-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, verify.IncrementAttempts(ctx, "c-2"))
	require.NoError(t, verify.MarkConsumed(ctx, "c-2", now))
	assert.ErrorIs(t, verify.MarkConsumed(ctx, "c-2", now), apperrors.ErrNotFound)

	latest, err = verify.Latest(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 1, latest.Attempts)
	assert.NotNil(t, latest.ConsumedAt)
}

func TestUsers_DeleteCascades(t *testing.T) {
	db := New()
	ctx := context.Background()
	seedUser(t, db, "u-1", "a@b.io")

	require.NoError(t, db.Codes(domain.PurposeEmailVerification).Create(ctx, &domain.VerificationCode{ID: "c-1", UserID: "u-1"}))
	require.NoError(t, db.RefreshTokens().Create(ctx, &domain.RefreshToken{ID: "t-1", UserID: "u-1", ExpiresAt: time.Now().Add(time.Hour)}))

	require.NoError(t, db.Users().Delete(ctx, "u-1"))

	_, err := db.Codes(domain.PurposeEmailVerification).Latest(ctx, "u-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = db.RefreshTokens().GetForUpdate(ctx, "t-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRefreshTokens_RevokeSemantics(t *testing.T) {
	db := New()
	ctx := context.Background()
	seedUser(t, db, "u-1", "a@b.io")
	tokens := db.RefreshTokens()

	require.NoError(t, tokens.Create(ctx, &domain.RefreshToken{ID: "t-1", UserID: "u-1"}))
	require.NoError(t, tokens.Create(ctx, &domain.RefreshToken{ID: "t-2", UserID: "u-1"}))
	assert.Equal(t, 2, db.ActiveRefreshTokens("u-1"))

	ok, err := tokens.Revoke(ctx, "t-1", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tokens.Revoke(ctx, "t-1", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := tokens.RevokeAllForUser(ctx, "u-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = tokens.RevokeAllForUser(ctx, "u-1", time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFailOn(t *testing.T) {
	db := New()
	ctx := context.Background()
	seedUser(t, db, "u-1", "a@b.io")
	boom := errors.New("disk full")

	db.FailOn("RefreshTokens.Create", boom)
	assert.ErrorIs(t, db.RefreshTokens().Create(ctx, &domain.RefreshToken{ID: "t-1", UserID: "u-1"}), boom)

	db.FailOn("RefreshTokens.Create", nil)
	assert.NoError(t, db.RefreshTokens().Create(ctx, &domain.RefreshToken{ID: "t-1", UserID: "u-1"}))
}
