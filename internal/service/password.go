package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wanderly/identity/internal/domain"
	"github.com/wanderly/identity/internal/mailer"
	"github.com/wanderly/identity/internal/repository"
	"github.com/wanderly/identity/internal/verification"
	apperrors "github.com/wanderly/identity/pkg/errors"
	"github.com/wanderly/identity/pkg/validator"
)

// ForgotPassword emails a reset code to a verified account. Unknown and
// unverified addresses, and accounts that used up their resend quota, get
// the same nil result so the endpoint cannot be used to discover which accounts exist.
// A mail transport failure is still returned.
func (s *IdentityService) ForgotPassword(ctx context.Context, email string) (err error) {
	defer func() { s.observe("forgot_password", err) }()

	if err := validator.Validate(emailInput{Email: email}); err != nil {
		return err
	}

	found, err := s.userByEmail(ctx, s.store, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.log(ctx).DebugContext(ctx, "password reset requested for unknown address")
			return nil
		}
		return err
	}
	if !found.IsVerified() {
		s.log(ctx).DebugContext(ctx, "password reset requested for unverified account",
			slog.String("user_id", found.ID),
		)
		return nil
	}

	var (
		user *domain.User
		code string
	)
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		u, err := lockUser(ctx, tx, found.ID)
		if err != nil {
			return err
		}
		code, err = s.renewResetCode(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrResendLimitExceeded) {
			s.log(ctx).WarnContext(ctx, "password reset quota exhausted",
				slog.String("user_id", found.ID),
			)
			return nil
		}
		return err
	}

	msg := mailer.PasswordResetEmail(user.Email, user.Name, code, ttlMinutes(s.resetCode.TTL()))
	return s.dispatch(ctx, msg)
}

// renewResetCode issues a reset code. While a code is still active, repeated
// requests count against the resend quota. Once the code has been used or
// has expired the next request starts a new quota.
func (s *IdentityService) renewResetCode(ctx context.Context, tx repository.Store, userID string) (string, error) {
	prior, err := tx.Codes(domain.PurposePasswordReset).Latest(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return s.resetCode.Issue(ctx, tx, userID)
	case err != nil:
		return "", fmt.Errorf("load reset code: %w", err)
	case domain.StateOf(prior, s.now()) != domain.StateActive:
		return s.resetCode.Issue(ctx, tx, userID)
	default:
		return s.resetCode.Resend(ctx, tx, userID)
	}
}

// ResetPasswordInput holds a reset code and the new password.
type ResetPasswordInput struct {
	Email       string `validate:"required,email"`
	Code        string `validate:"required,code4"`
	NewPassword string `validate:"required,min=8,max=128,password"`
}

// ResetPassword consumes the reset code, replaces the password and revokes
// every refresh token of the account in one transaction.
func (s *IdentityService) ResetPassword(ctx context.Context, input ResetPasswordInput) (err error) {
	defer func() { s.observe("reset_password", err) }()

	if err := validator.Validate(input); err != nil {
		return err
	}

	found, err := s.userByEmail(ctx, s.store, input.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrCodeNotFound
		}
		return err
	}

	digest, err := s.hasher.Hash(ctx, input.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var (
		rejected error
		revoked  int64
		user     *domain.User
	)
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		u, err := lockUser(ctx, tx, found.ID)
		if err != nil {
			return err
		}

		if err := s.resetCode.Consume(ctx, tx, u.ID, input.Code); err != nil {
			if verification.IsDomainFailure(err) {
				rejected = err
				return nil
			}
			return err
		}

		u.PasswordHash = &digest
		u.UpdatedAt = s.now().UTC()
		if err := tx.Users().Update(ctx, u); err != nil {
			return fmt.Errorf("update password: %w", err)
		}

		revoked, err = s.sessions.RevokeAll(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return err
	}
	if rejected != nil {
		return rejected
	}

	s.log(ctx).InfoContext(ctx, "password reset",
		slog.String("user_id", user.ID),
		slog.Int64("revoked_sessions", revoked),
	)
	if err := s.events.PasswordReset(ctx, user); err != nil {
		s.publishFailed(ctx, "user.password_reset", user.ID, err)
	}
	return nil
}

// ChangePasswordInput holds the current and the new password.
type ChangePasswordInput struct {
	CurrentPassword string `validate:"required,max=128"`
	NewPassword     string `validate:"required,min=8,max=128,password,nefield=CurrentPassword"`
}

// ChangePassword replaces the password of a signed-in user after checking
// the current one. Every refresh token of the account is revoked.
func (s *IdentityService) ChangePassword(ctx context.Context, userID string, input ChangePasswordInput) (err error) {
	defer func() { s.observe("change_password", err) }()

	if err := validator.Validate(input); err != nil {
		return err
	}

	digest, err := s.hasher.Hash(ctx, input.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.store.WithTx(ctx, func(tx repository.Store) error {
		u, err := lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !u.HasPassword() {
			return domain.ErrOAuthOnlyAccount
		}
		if !s.hasher.Verify(ctx, input.CurrentPassword, *u.PasswordHash) {
			if err := ctx.Err(); err != nil {
				return err
			}
			return domain.ErrWrongPassword
		}

		u.PasswordHash = &digest
		u.UpdatedAt = s.now().UTC()
		if err := tx.Users().Update(ctx, u); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if _, err := s.sessions.RevokeAll(ctx, tx, u.ID); err != nil {
			return err
		}

		s.log(ctx).InfoContext(ctx, "password changed", slog.String("user_id", u.ID))
		return nil
	})
}
