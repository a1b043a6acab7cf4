// Package mailer delivers the transactional emails of the identity flows.
package mailer

import (
	"context"
	"log/slog"

	"github.com/wanderly/identity/pkg/logger"
)

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Dispatcher sends a message. A returned error means the message was not
// accepted for delivery.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them. It is used
// in development, where the code in the body is what a developer needs.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs msg at debug level. The recipient is masked at info level.
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "log mailer: email accepted",
		slog.String("to", logger.MaskEmail(msg.To)),
		slog.String("subject", msg.Subject),
	)
	m.logger.DebugContext(ctx, "log mailer: email body",
		slog.String("to", msg.To),
		slog.String("text", msg.Text),
	)
	return nil
}
