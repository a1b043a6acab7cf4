package http

import (
	"log/slog"
	"net/http"

	"github.com/wanderly/identity/internal/domain"
	"github.com/wanderly/identity/internal/service"
	apperrors "github.com/wanderly/identity/pkg/errors"
	"github.com/wanderly/identity/pkg/httputil"
	"github.com/wanderly/identity/pkg/middleware"
)

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service *service.IdentityService
	cookies CookieConfig
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.IdentityService, cookies CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, cookies: cookies, logger: logger}
}

// --- Request DTOs ---

// SignupRequest is the JSON request body for creating an account.
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128,password"`
	Name     string `json:"name" validate:"max=100"`
}

// VerifyEmailRequest is the JSON request body for confirming an address.
type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,code4"`
}

// EmailRequest is the JSON request body for resend-code and forgot-password.
type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// LoginRequest is the JSON request body for password login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=128"`
}

// RefreshRequest is the optional JSON body for refresh and logout. Browser
// clients send the refresh cookie instead.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ResetPasswordRequest is the JSON request body for password reset.
type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,code4"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128,password"`
}

// ChangePasswordRequest is the JSON request body for changing a password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=128"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128,password,nefield=CurrentPassword"`
}

// --- Response types ---

// AuthResponse wraps user data with tokens.
type AuthResponse struct {
	User   *domain.User      `json:"user"`
	Tokens *domain.TokenPair `json:"tokens"`
}

// MessageResponse is returned by flows that produce no resource.
type MessageResponse struct {
	Message string `json:"message"`
}

// --- Handlers ---

// Signup handles POST /api/v1/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	user, err := h.service.Signup(r.Context(), service.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: user})
}

// VerifyEmail handles POST /api/v1/auth/verify-email
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	user, pair, err := h.service.VerifyEmail(r.Context(), service.VerifyEmailInput{Email: req.Email, Code: req.Code})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.cookies.setSession(w, pair)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: AuthResponse{User: user, Tokens: pair}})
}

// ResendCode handles POST /api/v1/auth/resend-code
func (h *AuthHandler) ResendCode(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if err := h.service.ResendVerification(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: MessageResponse{Message: "a new verification code has been sent"},
	})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	user, pair, err := h.service.Login(r.Context(), service.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.cookies.setSession(w, pair)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: AuthResponse{User: user, Tokens: pair}})
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRefresh(w, r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	token := refreshTokenFrom(r, req.RefreshToken)
	if token == "" {
		h.fail(w, r, domain.ErrInvalidRefreshToken)
		return
	}

	pair, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		h.cookies.clearSession(w)
		h.fail(w, r, err)
		return
	}

	h.cookies.setSession(w, pair)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: pair})
}

// Logout handles POST /api/v1/auth/logout. It always succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRefresh(w, r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if token := refreshTokenFrom(r, req.RefreshToken); token != "" {
		h.service.Logout(r.Context(), token)
	}

	h.cookies.clearSession(w)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: MessageResponse{Message: "logged out"},
	})
}

// ForgotPassword handles POST /api/v1/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: MessageResponse{Message: "if the email belongs to a verified account, a reset code has been sent"},
	})
}

// ResetPassword handles POST /api/v1/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	err := h.service.ResetPassword(r.Context(), service.ResetPasswordInput{
		Email:       req.Email,
		Code:        req.Code,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.cookies.clearSession(w)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: MessageResponse{Message: "password has been reset, sign in again"},
	})
}

// ChangePassword handles POST /api/v1/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("user not authenticated"), h.logger)
		return
	}

	var req ChangePasswordRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	err := h.service.ChangePassword(r.Context(), userID, service.ChangePasswordInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.cookies.clearSession(w)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: MessageResponse{Message: "password changed, sign in again"},
	})
}

func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, service.PublicError(err), h.logger)
}

// decodeRefresh reads the optional refresh body. An empty body is fine.
func decodeRefresh(w http.ResponseWriter, r *http.Request) (RefreshRequest, error) {
	var req RefreshRequest
	if r.ContentLength == 0 {
		return req, nil
	}
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		return req, err
	}
	return req, nil
}
