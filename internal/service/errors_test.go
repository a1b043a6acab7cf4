package service

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderly/identity/internal/domain"
	apperrors "github.com/wanderly/identity/pkg/errors"
	"github.com/wanderly/identity/pkg/validator"
)

func TestPublicError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{"unknown user", domain.ErrUserNotFound, "USER_NOT_FOUND", http.StatusNotFound},
		{"login with unknown user", invalidCredentialsError(domain.ErrUserNotFound), CodeInvalidCredentials, http.StatusUnauthorized},
		{"login with wrong password", invalidCredentialsError(domain.ErrWrongPassword), CodeInvalidCredentials, http.StatusUnauthorized},
		{"wrong password", domain.ErrWrongPassword, CodeInvalidCredentials, http.StatusUnauthorized},
		{"oauth only", domain.ErrOAuthOnlyAccount, CodeInvalidCredentials, http.StatusUnauthorized},
		{"revoked refresh", fmt.Errorf("%w: %w", domain.ErrInvalidRefreshToken, domain.ErrRefreshTokenNotFoundOrRevoked), CodeInvalidRefreshToken, http.StatusUnauthorized},
		{"expired jwt", domain.ErrTokenExpired, CodeInvalidRefreshToken, http.StatusUnauthorized},
		{"duplicate", domain.ErrEmailAlreadyRegistered, "EMAIL_ALREADY_REGISTERED", http.StatusConflict},
		{"not verified", domain.ErrEmailNotVerified, "EMAIL_NOT_VERIFIED", http.StatusForbidden},
		{"already verified", domain.ErrAlreadyVerified, "ALREADY_VERIFIED", http.StatusConflict},
		{"no code", domain.ErrCodeNotFound, "CODE_NOT_FOUND", http.StatusNotFound},
		{"expired code", domain.ErrCodeExpired, "CODE_EXPIRED", http.StatusGone},
		{"attempts", domain.ErrAttemptsExceeded, "ATTEMPTS_EXCEEDED", http.StatusTooManyRequests},
		{"resends", domain.ErrResendLimitExceeded, "RESEND_LIMIT_EXCEEDED", http.StatusTooManyRequests},
		{"wrong code", domain.ErrInvalidCode, "INVALID_CODE", http.StatusBadRequest},
		{"dispatch", fmt.Errorf("%w: %w", domain.ErrEmailDispatchFailed, errors.New("smtp down")), "EMAIL_DISPATCH_FAILED", http.StatusServiceUnavailable},
		{"app error", apperrors.InvalidInput("bad profile"), "INVALID_INPUT", http.StatusBadRequest},
		{"infrastructure", errors.New("connection reset"), "INTERNAL_ERROR", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var appErr *apperrors.AppError
			require.ErrorAs(t, PublicError(tt.err), &appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Equal(t, tt.wantStatus, appErr.Status)
		})
	}
}

func TestPublicError_PassesValidationThrough(t *testing.T) {
	err := validator.Validate(SignupInput{})
	require.Error(t, err)
	assert.Same(t, err, PublicError(err))
	assert.NoError(t, PublicError(nil))
}

func TestPublicError_KeepsCauseOfServerErrors(t *testing.T) {
	cause := errors.New("smtp down")
	err := PublicError(fmt.Errorf("%w: %w", domain.ErrEmailDispatchFailed, cause))
	assert.ErrorIs(t, err, cause)

	assert.NotErrorIs(t, PublicError(domain.ErrWrongPassword), domain.ErrWrongPassword)
}
