package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wanderly/identity/pkg/errors"
	"github.com/wanderly/identity/pkg/logger"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, Response{Data: map[string]string{"id": "u-1"}})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"id":"u-1"}}`, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"app error", apperrors.Gone("code expired"), http.StatusGone, "GONE"},
		{"wrapped app error", errors.Join(errors.New("ctx"), apperrors.TooManyRequests("slow down")), http.StatusTooManyRequests, "TOO_MANY_REQUESTS"},
		{"plain error", errors.New("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			fallback := slog.New(slog.NewJSONHandler(&logs, nil))

			req := httptest.NewRequest(http.MethodPost, "/x", nil)
			req = req.WithContext(logger.WithCorrelationID(req.Context(), "req-1"))
			rec := httptest.NewRecorder()

			WriteError(rec, req, tt.err, fallback)

			assert.Equal(t, tt.status, rec.Code)
			resp := decode(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, "req-1", resp.Error.RequestID)

			if tt.status == http.StatusInternalServerError {
				assert.Contains(t, logs.String(), "db down")
				assert.NotContains(t, rec.Body.String(), "db down")
			} else {
				assert.Empty(t, logs.String())
			}
		})
	}
}

type body struct {
	Email string `json:"email" validate:"required,email"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, err error)
	}{
		{"valid", `{"email":"a@b.io"}`, func(t *testing.T, err error) { assert.NoError(t, err) }},
		{"empty", ``, func(t *testing.T, err error) { assert.ErrorIs(t, err, apperrors.ErrInvalidInput) }},
		{"malformed", `{"email":`, func(t *testing.T, err error) { assert.ErrorIs(t, err, apperrors.ErrInvalidInput) }},
		{"unknown field", `{"email":"a@b.io","admin":true}`, func(t *testing.T, err error) { assert.ErrorIs(t, err, apperrors.ErrInvalidInput) }},
		{"too large", `{"email":"` + strings.Repeat("a", MaxBodyBytes) + `"}`, func(t *testing.T, err error) {
			assert.ErrorContains(t, err, "too large")
		}},
		{"fails validation", `{"email":"nope"}`, func(t *testing.T, err error) {
			rec := httptest.NewRecorder()
			WriteError(rec, httptest.NewRequest(http.MethodPost, "/", nil), err, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode(t, rec)
			assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
			assert.Equal(t, "must be a valid email address", resp.Error.Fields["email"])
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.payload))
			var dst body
			tt.check(t, DecodeJSON(httptest.NewRecorder(), req, &dst))
		})
	}
}

func TestWriteValidationError_PlainError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil).WithContext(context.Background())
	WriteValidationError(rec, req, errors.New("bad things"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
	assert.Equal(t, "bad things", resp.Error.Message)
}
