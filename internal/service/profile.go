package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/wanderly/identity/internal/domain"
	"github.com/wanderly/identity/internal/repository"
	apperrors "github.com/wanderly/identity/pkg/errors"
	"github.com/wanderly/identity/pkg/validator"
)

// UpdateProfileInput holds the profile fields to change. Nil fields are left
// as they are.
type UpdateProfileInput struct {
	Name     *string `validate:"omitnil,max=100"`
	Avatar   *string `validate:"omitempty,url,max=2048"`
	Theme    *string `validate:"omitnil,oneof=light dark system"`
	Language *string `validate:"omitnil,bcp47_language_tag"`
}

// GetProfile returns the user with the given id.
func (s *IdentityService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UpdateProfile applies input to the user's profile.
func (s *IdentityService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*domain.User, error) {
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	var user *domain.User
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		u, err := lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if input.Name != nil {
			u.Name = *input.Name
		}
		if input.Avatar != nil {
			u.Avatar = *input.Avatar
		}
		if input.Theme != nil {
			u.Theme = *input.Theme
		}
		if input.Language != nil {
			u.Language = *input.Language
		}
		u.UpdatedAt = s.now().UTC()

		if err := tx.Users().Update(ctx, u); err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
