package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderly/identity/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(map[string]string{
		"STORE_DRIVER": "memory",
		"BCRYPT_COST":  "4",
	})
	require.NoError(t, err)
	cfg.HTTPPort = 0
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewApp_InMemoryServesRoutes(t *testing.T) {
	a, err := NewApp(testConfig(t), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })

	assert.Nil(t, a.pool)
	assert.Nil(t, a.redis)
	assert.Nil(t, a.producer)

	rec := httptest.NewRecorder()
	a.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup",
		strings.NewReader(`{"email":"new@x.com","password":"P@ssw0rd1","name":"New"}`))
	req.Header.Set("Content-Type", "application/json")
	a.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	a.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, "identity_auth_events_total")
}

func TestNewApp_InvalidHasherCost(t *testing.T) {
	cfg := testConfig(t)
	cfg.BcryptCost = 1

	a, err := NewApp(cfg, discardLogger())

	assert.Nil(t, a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create hasher")
}

func TestRun_StopsOnCanceledContext(t *testing.T) {
	a, err := NewApp(testConfig(t), discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, a.Run(ctx))
}
