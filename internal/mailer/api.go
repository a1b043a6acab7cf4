package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/wanderly/identity/pkg/httpclient"
	"github.com/wanderly/identity/pkg/logger"
)

// Poster is the part of the HTTP client the API mailer needs.
// *httpclient.CircuitBreakerClient satisfies it.
type Poster interface {
	Post(ctx context.Context, url, contentType string, body []byte, headers http.Header) (*http.Response, error)
}

// APIConfig configures an APIMailer.
type APIConfig struct {
	BaseURL string
	APIKey  string
	From    string
}

// APIMailer sends messages through a Resend-compatible HTTP API.
type APIMailer struct {
	client   Poster
	endpoint string
	apiKey   string
	from     string
	logger   *slog.Logger
}

// NewAPIMailer creates an APIMailer.
func NewAPIMailer(client Poster, cfg APIConfig, logger *slog.Logger) (*APIMailer, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("mail API base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("mail API key is required")
	}
	if cfg.From == "" {
		return nil, errors.New("mail sender address is required")
	}
	return &APIMailer{
		client:   client,
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/emails",
		apiKey:   cfg.APIKey,
		from:     cfg.From,
		logger:   logger,
	}, nil
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Send posts msg to the API.
func (m *APIMailer) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(sendRequest{
		From:    m.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+m.apiKey)
	headers.Set("Accept", "application/json")

	resp, err := m.client.Post(ctx, m.endpoint, "application/json", body, headers)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if !httpclient.IsSuccess(resp.StatusCode) {
		return fmt.Errorf("send email: %w", httpclient.ParseResponseError(resp, "mail API"))
	}
	defer func() { _ = resp.Body.Close() }()

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		m.logger.WarnContext(ctx, "mail API returned an unreadable body",
			slog.String("error", err.Error()),
		)
	}

	m.logger.InfoContext(ctx, "email sent",
		slog.String("to", logger.MaskEmail(msg.To)),
		slog.String("subject", msg.Subject),
		slog.String("message_id", out.ID),
	)
	return nil
}
