package httpclient

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/wanderly/identity/pkg/errors"
)

func response(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestParseResponseError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		contains string
	}{
		{"nested shape", http.StatusBadRequest, `{"error":{"code":"BAD","message":"bad to"}}`, apperrors.ErrInvalidInput, "mail-api: bad to"},
		{"flat shape", http.StatusUnprocessableEntity, `{"name":"validation_error","message":"invalid from"}`, apperrors.ErrInvalidInput, "invalid from"},
		{"unauthorized", http.StatusUnauthorized, `{"message":"api key invalid"}`, apperrors.ErrUnauthorized, "api key invalid"},
		{"rate limited", http.StatusTooManyRequests, `{"message":"slow down"}`, apperrors.ErrTooManyRequests, "slow down"},
		{"unavailable", http.StatusServiceUnavailable, `{"message":"maintenance"}`, apperrors.ErrServiceUnavail, "maintenance"},
		{"plain text", http.StatusBadRequest, `nope`, nil, "mail-api returned status 400: nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseResponseError(response(tt.status, tt.body), "mail-api")
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestIsSuccess(t *testing.T) {
	assert.True(t, IsSuccess(200))
	assert.True(t, IsSuccess(202))
	assert.False(t, IsSuccess(301))
	assert.False(t, IsSuccess(400))
}
