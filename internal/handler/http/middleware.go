package http

import (
	"net/http"
	"strings"

	apperrors "github.com/wanderly/identity/pkg/errors"
	"github.com/wanderly/identity/pkg/httputil"
)

// ContentTypeJSON rejects requests that carry a body in anything but JSON.
// Bodiless POSTs are allowed so refresh and logout can rely on the cookie.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if r.ContentLength != 0 && !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
				appErr := apperrors.New("UNSUPPORTED_MEDIA_TYPE", "Content-Type must be application/json",
					http.StatusUnsupportedMediaType, apperrors.ErrInvalidInput)
				httputil.WriteError(w, r, appErr, nil)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
