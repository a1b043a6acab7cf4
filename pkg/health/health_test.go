package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h http.HandlerFunc) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestLiveness(t *testing.T) {
	h := NewHandler(time.Second)
	h.Register("postgres", func(context.Context) error { return errors.New("down") })

	code, resp := serve(t, h.LivenessHandler())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name   string
		redis  error
		status int
		want   Status
	}{
		{"all up", nil, http.StatusOK, StatusUp},
		{"one down", errors.New("connection refused"), http.StatusServiceUnavailable, StatusDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(time.Second)
			h.Register("postgres", func(context.Context) error { return nil })
			h.Register("redis", func(context.Context) error { return tt.redis })

			code, resp := serve(t, h.ReadinessHandler())
			assert.Equal(t, tt.status, code)
			assert.Equal(t, tt.want, resp.Status)
			assert.Equal(t, StatusUp, resp.Checks["postgres"].Status)
			if tt.redis != nil {
				assert.Equal(t, "connection refused", resp.Checks["redis"].Error)
			}
		})
	}
}

func TestCheck_TimesOutSlowDependencies(t *testing.T) {
	h := NewHandler(20 * time.Millisecond)
	h.Register("kafka", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	resp := h.Check(context.Background())
	assert.Equal(t, StatusDown, resp.Status)
	assert.Contains(t, resp.Checks["kafka"].Error, "deadline exceeded")
}

func TestNames(t *testing.T) {
	h := NewHandler(0)
	h.Register("redis", nil)
	h.Register("postgres", nil)
	assert.Equal(t, []string{"postgres", "redis"}, h.Names())
}
