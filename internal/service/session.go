package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wanderly/identity/internal/auth"
	"github.com/wanderly/identity/internal/domain"
	"github.com/wanderly/identity/internal/metrics"
	"github.com/wanderly/identity/internal/repository"
	"github.com/wanderly/identity/internal/session"
	"github.com/wanderly/identity/pkg/validator"
)

// LoginInput holds the parameters for password login.
type LoginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,max=128"`
}

// Login checks the password and starts a session. The specific failures
// (unknown user, OAuth-only account, wrong password) are wrapped in
// domain.ErrInvalidCredentials so callers see one outcome.
// domain.ErrEmailNotVerified is only returned once the password has matched.
func (s *IdentityService) Login(ctx context.Context, input LoginInput) (user *domain.User, pair *domain.TokenPair, err error) {
	defer func() { s.observe("login", err) }()

	if err := validator.Validate(input); err != nil {
		return nil, nil, err
	}

	user, err = s.userByEmail(ctx, s.store, input.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.hasher.Verify(ctx, input.Password, s.dummyHash)
			return nil, nil, invalidCredentialsError(err)
		}
		return nil, nil, err
	}

	if !user.HasPassword() {
		s.hasher.Verify(ctx, input.Password, s.dummyHash)
		return nil, nil, invalidCredentialsError(domain.ErrOAuthOnlyAccount)
	}
	if !s.hasher.Verify(ctx, input.Password, *user.PasswordHash) {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		s.log(ctx).WarnContext(ctx, "login with wrong password", slog.String("user_id", user.ID))
		return nil, nil, invalidCredentialsError(domain.ErrWrongPassword)
	}
	if !user.IsVerified() {
		return nil, nil, domain.ErrEmailNotVerified
	}

	pair, err = s.issueSession(ctx, s.store, user)
	if err != nil {
		return nil, nil, err
	}

	s.log(ctx).InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))
	return user, pair, nil
}

// Refresh rotates the presented refresh token and returns a new pair. The
// presented token can never be used again. Every rejection is
// domain.ErrInvalidRefreshToken.
func (s *IdentityService) Refresh(ctx context.Context, refreshToken string) (pair *domain.TokenPair, err error) {
	defer func() { s.observe("refresh", err) }()

	claims, err := s.signer.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRefreshToken, err)
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		u, err := lockUser(ctx, tx, claims.UserID())
		if err != nil {
			return err
		}

		issued, err := s.signer.IssuePair(auth.SubjectOf(u))
		if err != nil {
			return fmt.Errorf("issue token pair: %w", err)
		}

		err = s.sessions.Rotate(ctx, tx,
			session.Presented{TokenID: claims.ID, UserID: claims.UserID(), Value: refreshToken},
			session.New{
				TokenID:   issued.Refresh.ID,
				UserID:    u.ID,
				Value:     issued.Refresh.Value,
				ExpiresAt: issued.Refresh.ExpiresAt,
			},
		)
		if err != nil {
			return err
		}
		p := issued.Pair
		pair = &p
		return nil
	})
	if err != nil {
		var de *domain.DomainError
		if errors.As(err, &de) {
			s.log(ctx).WarnContext(ctx, "refresh token rejected",
				slog.String("user_id", claims.UserID()),
				slog.String("reason", de.Code),
			)
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRefreshToken, err)
		}
		return nil, err
	}
	return pair, nil
}

// Logout revokes the presented refresh token. It never fails: unknown,
// revoked or malformed tokens are ignored and store errors are only logged.
func (s *IdentityService) Logout(ctx context.Context, refreshToken string) {
	claims, err := s.signer.VerifyRefresh(refreshToken)
	if err != nil {
		return
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		return s.sessions.Revoke(ctx, tx, session.Presented{
			TokenID: claims.ID,
			UserID:  claims.UserID(),
			Value:   refreshToken,
		})
	})
	if err != nil {
		s.log(ctx).ErrorContext(ctx, "failed to revoke refresh token on logout",
			slog.String("user_id", claims.UserID()),
			slog.String("error", err.Error()),
		)
		return
	}
	s.metrics.AuthEvent("logout", metrics.OutcomeSuccess)
}

// Authenticate verifies an access token.
func (s *IdentityService) Authenticate(accessToken string) (*auth.Claims, error) {
	return s.signer.VerifyAccess(accessToken)
}

// invalidCredentialsError keeps the specific cause for errors.Is while
// presenting a single login failure.
func invalidCredentialsError(cause error) error {
	return fmt.Errorf("%w: %w", domain.ErrInvalidCredentials, cause)
}
