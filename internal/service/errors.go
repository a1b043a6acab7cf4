package service

import (
	"errors"
	"net/http"

	"github.com/wanderly/identity/internal/domain"
	apperrors "github.com/wanderly/identity/pkg/errors"
)

// Public error codes that do not come from a single domain error.
const (
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
)

type publicMapping struct {
	target error
	build  func() *apperrors.AppError
}

func public(code, message string, status int, sentinel error) func() *apperrors.AppError {
	return func() *apperrors.AppError {
		return apperrors.New(code, message, status, sentinel)
	}
}

var invalidCredentials = public(CodeInvalidCredentials, "invalid email or password", http.StatusUnauthorized, apperrors.ErrUnauthorized)

var invalidRefreshToken = public(CodeInvalidRefreshToken, "refresh token is invalid or has expired", http.StatusUnauthorized, apperrors.ErrUnauthorized)

// Order matters: the dispatch and refresh wrappers carry their cause, which
// may itself be a domain error.
var publicMappings = []publicMapping{
	{domain.ErrEmailDispatchFailed, func() *apperrors.AppError {
		return apperrors.New("EMAIL_DISPATCH_FAILED", "the email could not be sent, please try again", http.StatusServiceUnavailable, apperrors.ErrServiceUnavail)
	}},
	{domain.ErrInvalidRefreshToken, invalidRefreshToken},
	{domain.ErrRefreshTokenNotFoundOrRevoked, invalidRefreshToken},
	{domain.ErrTokenInvalid, invalidRefreshToken},
	{domain.ErrTokenExpired, invalidRefreshToken},

	{domain.ErrInvalidCredentials, invalidCredentials},
	{domain.ErrWrongPassword, invalidCredentials},
	{domain.ErrOAuthOnlyAccount, invalidCredentials},
	{domain.ErrUserNotFound, public("USER_NOT_FOUND", "no account with this email address", http.StatusNotFound, apperrors.ErrNotFound)},

	{domain.ErrEmailAlreadyRegistered, public("EMAIL_ALREADY_REGISTERED", "an account with this email already exists", http.StatusConflict, apperrors.ErrAlreadyExists)},
	{domain.ErrEmailNotVerified, public("EMAIL_NOT_VERIFIED", "verify your email address before signing in", http.StatusForbidden, apperrors.ErrForbidden)},
	{domain.ErrAlreadyVerified, public("ALREADY_VERIFIED", "this email address is already verified", http.StatusConflict, apperrors.ErrConflict)},
	{domain.ErrNoEmailInProfile, public("NO_EMAIL_IN_PROFILE", "the provider did not share an email address", http.StatusBadRequest, apperrors.ErrInvalidInput)},

	{domain.ErrCodeNotFound, public("CODE_NOT_FOUND", "no active code, request a new one", http.StatusNotFound, apperrors.ErrNotFound)},
	{domain.ErrCodeExpired, public("CODE_EXPIRED", "the code has expired, request a new one", http.StatusGone, apperrors.ErrGone)},
	{domain.ErrAttemptsExceeded, public("ATTEMPTS_EXCEEDED", "too many wrong attempts, request a new code", http.StatusTooManyRequests, apperrors.ErrTooManyRequests)},
	{domain.ErrResendLimitExceeded, public("RESEND_LIMIT_EXCEEDED", "too many codes requested, try again later", http.StatusTooManyRequests, apperrors.ErrTooManyRequests)},
	{domain.ErrInvalidCode, public("INVALID_CODE", "the code is not correct", http.StatusBadRequest, apperrors.ErrInvalidInput)},
	{domain.ErrInvalidUser, public("INVALID_USER", "the account data is not valid", http.StatusBadRequest, apperrors.ErrInvalidInput)},
}

// PublicError converts an error returned by IdentityService into what a
// caller may see. Every Login failure before the password matches, wrong
// passwords and OAuth-only accounts become INVALID_CREDENTIALS, and every
// token failure becomes INVALID_REFRESH_TOKEN. Validation errors and AppErrors pass through.
// Anything else is an opaque internal error that keeps err for logging.
func PublicError(err error) error {
	if err == nil {
		return nil
	}
	if isValidation(err) {
		return err
	}
	for _, m := range publicMappings {
		if errors.Is(err, m.target) {
			appErr := m.build()
			if appErr.Status >= http.StatusInternalServerError {
				appErr.Err = err
			}
			return appErr
		}
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.Internal(err)
}
