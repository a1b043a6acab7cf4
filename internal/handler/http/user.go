package http

import (
	"log/slog"
	"net/http"

	"github.com/wanderly/identity/internal/service"
	apperrors "github.com/wanderly/identity/pkg/errors"
	"github.com/wanderly/identity/pkg/httputil"
	"github.com/wanderly/identity/pkg/middleware"
)

// UserHandler handles HTTP requests for the signed-in user's profile.
type UserHandler struct {
	service *service.IdentityService
	logger  *slog.Logger
}

// NewUserHandler creates a new user HTTP handler.
func NewUserHandler(svc *service.IdentityService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, logger: logger}
}

// UpdateProfileRequest is the JSON request body for updating the profile.
// Omitted fields are left unchanged.
type UpdateProfileRequest struct {
	Name     *string `json:"name" validate:"omitnil,max=100"`
	Avatar   *string `json:"avatar" validate:"omitempty,url,max=2048"`
	Theme    *string `json:"theme" validate:"omitnil,oneof=light dark system"`
	Language *string `json:"language" validate:"omitnil,bcp47_language_tag"`
}

// GetProfile handles GET /api/v1/users/me
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("user not authenticated"), h.logger)
		return
	}

	user, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: user})
}

// UpdateProfile handles PUT /api/v1/users/me
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("user not authenticated"), h.logger)
		return
	}

	var req UpdateProfileRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), userID, service.UpdateProfileInput{
		Name:     req.Name,
		Avatar:   req.Avatar,
		Theme:    req.Theme,
		Language: req.Language,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: user})
}

func (h *UserHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, service.PublicError(err), h.logger)
}
