package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wanderly/identity/internal/domain"
	"github.com/wanderly/identity/internal/mailer"
	"github.com/wanderly/identity/internal/repository"
	"github.com/wanderly/identity/internal/verification"
	apperrors "github.com/wanderly/identity/pkg/errors"
	"github.com/wanderly/identity/pkg/logger"
	"github.com/wanderly/identity/pkg/validator"
)

// SignupInput holds the parameters for creating a password account.
type SignupInput struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,min=8,max=128,password"`
	Name     string `validate:"max=100"`
}

// Signup creates an unverified account and emails it a verification code.
// An unverified account with the same address is replaced; a verified one
// fails with domain.ErrEmailAlreadyRegistered.
func (s *IdentityService) Signup(ctx context.Context, input SignupInput) (user *domain.User, err error) {
	defer func() { s.observe("signup", err) }()

	if err := validator.Validate(input); err != nil {
		return nil, err
	}
	email := domain.NormalizeEmail(input.Email)

	digest, err := s.hasher.Hash(ctx, input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user = &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: &digest,
		Name:         input.Name,
		Role:         domain.RoleUser,
		Theme:        domain.DefaultTheme,
		Language:     domain.DefaultLanguage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	code, err := s.replaceOrCreate(ctx, user)
	if errors.Is(err, apperrors.ErrAlreadyExists) {
		// A concurrent signup for the same address committed first; the
		// second pass sees its row and replaces it while it is unverified.
		code, err = s.replaceOrCreate(ctx, user)
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, domain.ErrEmailAlreadyRegistered
		}
		return nil, err
	}

	s.log(ctx).InfoContext(ctx, "user signed up",
		slog.String("user_id", user.ID),
		slog.String("email", logger.MaskEmail(user.Email)),
	)

	msg := mailer.VerificationEmail(user.Email, user.Name, code, ttlMinutes(s.verifyCode.TTL()))
	if err := s.dispatch(ctx, msg); err != nil {
		return nil, err
	}

	if err := s.events.UserRegistered(ctx, user); err != nil {
		s.publishFailed(ctx, "user.registered", user.ID, err)
	}
	return user, nil
}

// replaceOrCreate inserts user, first deleting an unverified account with
// the same address, and issues its verification code in one transaction.
func (s *IdentityService) replaceOrCreate(ctx context.Context, user *domain.User) (string, error) {
	var code string
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		existing, err := s.userByEmail(ctx, tx, user.Email)
		switch {
		case err == nil:
			locked, err := lockUser(ctx, tx, existing.ID)
			if err != nil {
				return err
			}
			if locked.IsVerified() {
				return domain.ErrEmailAlreadyRegistered
			}
			if err := tx.Users().Delete(ctx, locked.ID); err != nil {
				return fmt.Errorf("delete unverified user: %w", err)
			}
		case !errors.Is(err, domain.ErrUserNotFound):
			return err
		}

		if err := tx.Users().Create(ctx, user); err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		code, err = s.verifyCode.Issue(ctx, tx, user.ID)
		if err != nil {
			return fmt.Errorf("issue verification code: %w", err)
		}
		return nil
	})
	return code, err
}

// VerifyEmailInput holds an address and the code sent to it.
type VerifyEmailInput struct {
	Email string `validate:"required,email"`
	Code  string `validate:"required,code4"`
}

// VerifyEmail consumes the verification code, marks the address verified and
// starts a session, all in one transaction. A wrong code still records the
// failed attempt.
func (s *IdentityService) VerifyEmail(ctx context.Context, input VerifyEmailInput) (user *domain.User, pair *domain.TokenPair, err error) {
	defer func() { s.observe("verify_email", err) }()

	if err := validator.Validate(input); err != nil {
		return nil, nil, err
	}

	found, err := s.userByEmail(ctx, s.store, input.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, nil, domain.ErrCodeNotFound
		}
		return nil, nil, err
	}

	var rejected error
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		u, err := lockUser(ctx, tx, found.ID)
		if err != nil {
			return err
		}
		if u.IsVerified() {
			return domain.ErrAlreadyVerified
		}

		if err := s.verifyCode.Consume(ctx, tx, u.ID, input.Code); err != nil {
			if verification.IsDomainFailure(err) {
				rejected = err
				return nil
			}
			return err
		}

		now := s.now().UTC()
		u.EmailVerifiedAt = &now
		u.UpdatedAt = now
		if err := tx.Users().Update(ctx, u); err != nil {
			return fmt.Errorf("mark email verified: %w", err)
		}

		pair, err = s.issueSession(ctx, tx, u)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if rejected != nil {
		return nil, nil, rejected
	}

	s.log(ctx).InfoContext(ctx, "email verified", slog.String("user_id", user.ID))
	if err := s.events.EmailVerified(ctx, user); err != nil {
		s.publishFailed(ctx, "user.email_verified", user.ID, err)
	}
	return user, pair, nil
}

// ResendVerification replaces the user's verification code and emails it.
func (s *IdentityService) ResendVerification(ctx context.Context, email string) (err error) {
	defer func() { s.observe("resend_verification", err) }()

	if err := validator.Validate(emailInput{Email: email}); err != nil {
		return err
	}

	found, err := s.userByEmail(ctx, s.store, email)
	if err != nil {
		return err
	}
	if found.IsVerified() {
		return domain.ErrAlreadyVerified
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
		if u.IsVerified() {
			return domain.ErrAlreadyVerified
		}
		code, err = s.verifyCode.Resend(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return err
	}

	msg := mailer.VerificationEmail(user.Email, user.Name, code, ttlMinutes(s.verifyCode.TTL()))
	return s.dispatch(ctx, msg)
}

type emailInput struct {
	Email string `validate:"required,email"`
}

func isValidation(err error) bool {
	var ve *validator.ValidationError
	return errors.As(err, &ve)
}
