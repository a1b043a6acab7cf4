package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wanderly/identity/pkg/errors"
	"github.com/wanderly/identity/pkg/httpclient"
	"github.com/wanderly/identity/pkg/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient() *httpclient.CircuitBreakerClient {
	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	cfg.Timeout = 2 * time.Second
	return httpclient.NewCircuitBreakerClient(
		httpclient.New(cfg),
		httpclient.DefaultCircuitBreakerConfig("mail-api"),
		nil,
		testLogger(),
	)
}

func TestAPIMailer_Send(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_123"}`))
	}))
	defer srv.Close()

	m, err := NewAPIMailer(newClient(), APIConfig{BaseURL: srv.URL + "/", APIKey: "re_test", From: "Wanderly <no-reply@wanderly.app>"}, testLogger())
	require.NoError(t, err)

	msg := VerificationEmail("ada@example.com", "Ada", "4821", 10)
	require.NoError(t, m.Send(context.Background(), msg))

	assert.Equal(t, "Wanderly <no-reply@wanderly.app>", got.From)
	assert.Equal(t, []string{"ada@example.com"}, got.To)
	assert.Equal(t, "Verify your email address", got.Subject)
	assert.Contains(t, got.HTML, "4821")
	assert.Contains(t, got.Text, "4821")
}

func TestAPIMailer_Send_ClientErrorIsMapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"validation_error","message":"invalid to field"}`))
	}))
	defer srv.Close()

	m, err := NewAPIMailer(newClient(), APIConfig{BaseURL: srv.URL, APIKey: "k", From: "a@b.io"}, testLogger())
	require.NoError(t, err)

	err = m.Send(context.Background(), Message{To: "x@y.io", Subject: "s", Text: "t"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "invalid to field")
}

func TestAPIMailer_Send_ServerErrorFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m, err := NewAPIMailer(newClient(), APIConfig{BaseURL: srv.URL, APIKey: "k", From: "a@b.io"}, testLogger())
	require.NoError(t, err)

	err = m.Send(context.Background(), Message{To: "x@y.io", Subject: "s", Text: "t"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewAPIMailer_RequiresConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  APIConfig
	}{
		{"no url", APIConfig{APIKey: "k", From: "a@b.io"}},
		{"no key", APIConfig{BaseURL: "http://x", From: "a@b.io"}},
		{"no from", APIConfig{BaseURL: "http://x", APIKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAPIMailer(newClient(), tt.cfg, testLogger())
			assert.Error(t, err)
		})
	}
}

func TestLogMailer_MasksRecipientAtInfo(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewWithWriter("identity", "info", &buf)

	require.NoError(t, NewLogMailer(l).Send(context.Background(), PasswordResetEmail("ada@example.com", "", "1234", 10)))

	out := buf.String()
	assert.Contains(t, out, "Reset your password")
	assert.NotContains(t, out, "ada@example.com")
	assert.NotContains(t, out, "1234")
}

func TestTemplates(t *testing.T) {
	v := VerificationEmail("a@b.io", "<b>Eve</b>", "9876", 10)
	assert.Contains(t, v.HTML, "&lt;b&gt;Eve&lt;/b&gt;")
	assert.Contains(t, v.Text, "Hello <b>Eve</b>,")
	assert.Contains(t, v.Text, "10 minutes")

	r := PasswordResetEmail("a@b.io", "", "1234", 15)
	assert.Equal(t, "a@b.io", r.To)
	assert.Contains(t, r.Text, "Hello,")
	assert.Contains(t, r.HTML, "<strong>1234</strong>")
}
