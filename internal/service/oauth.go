package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/wanderly/identity/internal/domain"
	"github.com/wanderly/identity/internal/repository"
	apperrors "github.com/wanderly/identity/pkg/errors"
)

type oauthOutcome int

const (
	oauthReturning oauthOutcome = iota
	oauthLinked
	oauthCreated
)

// FindOrCreateOAuthUser resolves a provider profile to an account. It tries,
// in this order: the provider identity, then the email address (linking the
// provider and marking the address verified), then creates a new verified
// account without a password. The provider avatar always replaces the stored
// one.
func (s *IdentityService) FindOrCreateOAuthUser(ctx context.Context, profile domain.OAuthProfile) (user *domain.User, err error) {
	defer func() { s.observe("oauth", err) }()

	if strings.TrimSpace(profile.Email) == "" {
		return nil, domain.ErrNoEmailInProfile
	}
	if profile.Provider == "" || profile.ProviderID == "" {
		return nil, apperrors.InvalidInput("oauth profile must name a provider and a provider user id")
	}

	var outcome oauthOutcome
	user, outcome, err = s.resolveOAuth(ctx, profile)
	if errors.Is(err, apperrors.ErrAlreadyExists) {
		// A concurrent first login for the same identity won the insert;
		// the second pass finds its row.
		user, outcome, err = s.resolveOAuth(ctx, profile)
	}
	if err != nil {
		return nil, err
	}

	switch outcome {
	case oauthLinked, oauthCreated:
		s.log(ctx).InfoContext(ctx, "oauth identity linked",
			slog.String("user_id", user.ID),
			slog.String("provider", profile.Provider),
			slog.Bool("created", outcome == oauthCreated),
		)
		if err := s.events.OAuthLinked(ctx, user, outcome == oauthCreated); err != nil {
			s.publishFailed(ctx, "user.oauth_linked", user.ID, err)
		}
	}
	return user, nil
}

func (s *IdentityService) resolveOAuth(ctx context.Context, profile domain.OAuthProfile) (*domain.User, oauthOutcome, error) {
	var (
		user    *domain.User
		outcome oauthOutcome
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		now := s.now().UTC()

		byProvider, err := tx.Users().GetByProvider(ctx, profile.Provider, profile.ProviderID)
		switch {
		case err == nil:
			u, err := lockUser(ctx, tx, byProvider.ID)
			if err != nil {
				return err
			}
			if u.Avatar != profile.Avatar {
				u.Avatar = profile.Avatar
				u.UpdatedAt = now
				if err := tx.Users().Update(ctx, u); err != nil {
					return fmt.Errorf("update avatar: %w", err)
				}
			}
			user, outcome = u, oauthReturning
			return nil
		case !errors.Is(err, apperrors.ErrNotFound):
			return fmt.Errorf("get user by provider: %w", err)
		}

		byEmail, err := s.userByEmail(ctx, tx, profile.Email)
		switch {
		case err == nil:
			u, err := lockUser(ctx, tx, byEmail.ID)
			if err != nil {
				return err
			}
			providerID := profile.ProviderID
			u.ExternalProviderID = &providerID
			u.Provider = profile.Provider
			u.Avatar = profile.Avatar
			if !u.IsVerified() {
				u.EmailVerifiedAt = &now
			}
			if u.Name == "" {
				u.Name = profile.Name
			}
			u.UpdatedAt = now
			if err := tx.Users().Update(ctx, u); err != nil {
				return fmt.Errorf("link oauth identity: %w", err)
			}
			user, outcome = u, oauthLinked
			return nil
		case !errors.Is(err, domain.ErrUserNotFound):
			return err
		}

		providerID := profile.ProviderID
		u := &domain.User{
			ID:                 uuid.NewString(),
			Email:              domain.NormalizeEmail(profile.Email),
			Name:               profile.Name,
			Role:               domain.RoleUser,
			EmailVerifiedAt:    &now,
			ExternalProviderID: &providerID,
			Provider:           profile.Provider,
			Avatar:             profile.Avatar,
			Theme:              domain.DefaultTheme,
			Language:           domain.DefaultLanguage,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.Users().Create(ctx, u); err != nil {
			return fmt.Errorf("create oauth user: %w", err)
		}
		user, outcome = u, oauthCreated
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return user, outcome, nil
}

// OAuthLogin resolves profile to an account and starts a session for it.
func (s *IdentityService) OAuthLogin(ctx context.Context, profile domain.OAuthProfile) (*domain.User, *domain.TokenPair, error) {
	user, err := s.FindOrCreateOAuthUser(ctx, profile)
	if err != nil {
		return nil, nil, err
	}
	pair, err := s.issueSession(ctx, s.store, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}
