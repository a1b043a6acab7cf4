package domain

// DomainError is a specific, internal failure of an identity flow. Callers
// outside the service see the collapsed form produced by service.PublicError.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func newError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Account errors.
var (
	ErrInvalidUser            = newError("INVALID_USER", "user must have an email and a password or an external provider")
	ErrUserNotFound           = newError("USER_NOT_FOUND", "user not found")
	ErrWrongPassword          = newError("WRONG_PASSWORD", "password does not match")
	ErrOAuthOnlyAccount       = newError("OAUTH_ONLY_ACCOUNT", "account has no password")
	ErrInvalidCredentials     = newError("INVALID_CREDENTIALS", "invalid email or password")
	ErrEmailAlreadyRegistered = newError("EMAIL_ALREADY_REGISTERED", "email is already registered")
	ErrEmailNotVerified       = newError("EMAIL_NOT_VERIFIED", "email address has not been verified")
	ErrAlreadyVerified        = newError("ALREADY_VERIFIED", "email address is already verified")
	ErrNoEmailInProfile       = newError("NO_EMAIL_IN_PROFILE", "oauth profile carries no email address")
)

// Verification code errors.
var (
	ErrCodeNotFound        = newError("CODE_NOT_FOUND", "no active code")
	ErrCodeExpired         = newError("CODE_EXPIRED", "code has expired")
	ErrAttemptsExceeded    = newError("ATTEMPTS_EXCEEDED", "too many attempts for this code")
	ErrInvalidCode         = newError("INVALID_CODE", "code does not match")
	ErrResendLimitExceeded = newError("RESEND_LIMIT_EXCEEDED", "code resend limit reached")
)

// Token errors.
var (
	ErrTokenInvalid                  = newError("TOKEN_INVALID", "token is invalid")
	ErrTokenExpired                  = newError("TOKEN_EXPIRED", "token has expired")
	ErrRefreshTokenNotFoundOrRevoked = newError("REFRESH_TOKEN_NOT_FOUND_OR_REVOKED", "refresh token not found or revoked")
	ErrInvalidRefreshToken           = newError("INVALID_REFRESH_TOKEN", "invalid refresh token")
)

// ErrEmailDispatchFailed wraps a failure of the outbound email transport.
var ErrEmailDispatchFailed = newError("EMAIL_DISPATCH_FAILED", "could not send email")
