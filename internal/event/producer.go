// Package event publishes identity domain events.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wanderly/identity/internal/domain"
	pkgkafka "github.com/wanderly/identity/pkg/kafka"
)

// Kafka topics for user events.
var (
	TopicUserRegistered    = pkgkafka.Topic("user", "registered")
	TopicUserEmailVerified = pkgkafka.Topic("user", "email_verified")
	TopicUserPasswordReset = pkgkafka.Topic("user", "password_reset")
	TopicUserOAuthLinked   = pkgkafka.Topic("user", "oauth_linked")
)

const (
	AggregateTypeUser = "user"
	SourceIdentity    = "identity-service"
)

// Publisher is what the identity service emits after a flow commits.
type Publisher interface {
	UserRegistered(ctx context.Context, user *domain.User) error
	EmailVerified(ctx context.Context, user *domain.User) error
	PasswordReset(ctx context.Context, user *domain.User) error
	OAuthLinked(ctx context.Context, user *domain.User, created bool) error
}

// UserRegisteredData is the payload of user.registered.
type UserRegisteredData struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Provider string `json:"provider,omitempty"`
}

// UserData is the payload of user.email_verified and user.password_reset.
type UserData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// OAuthLinkedData is the payload of user.oauth_linked.
type OAuthLinkedData struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Provider string `json:"provider"`
	Created  bool   `json:"created"`
}

// Sender is the part of pkg/kafka.Producer used here.
type Sender interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes user events to Kafka.
type Producer struct {
	kafka  Sender
	logger *slog.Logger
}

// NewProducer creates a Producer.
func NewProducer(kafka Sender, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, userID string, data any) error {
	evt, err := pkgkafka.NewEvent(ctx, topic, userID, AggregateTypeUser, SourceIdentity, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	p.logger.DebugContext(ctx, "published user event",
		slog.String("topic", topic),
		slog.String("user_id", userID),
	)
	return nil
}

// UserRegistered publishes user.registered.
func (p *Producer) UserRegistered(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserRegistered, user.ID, UserRegisteredData{
		ID:       user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Provider: user.Provider,
	})
}

// EmailVerified publishes user.email_verified.
func (p *Producer) EmailVerified(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserEmailVerified, user.ID, UserData{UserID: user.ID, Email: user.Email})
}

// PasswordReset publishes user.password_reset.
func (p *Producer) PasswordReset(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserPasswordReset, user.ID, UserData{UserID: user.ID, Email: user.Email})
}

// OAuthLinked publishes user.oauth_linked. created is true when the account
// did not exist before.
func (p *Producer) OAuthLinked(ctx context.Context, user *domain.User, created bool) error {
	return p.publish(ctx, TopicUserOAuthLinked, user.ID, OAuthLinkedData{
		UserID:   user.ID,
		Email:    user.Email,
		Provider: user.Provider,
		Created:  created,
	})
}

// Noop drops every event. It is used when Kafka is disabled.
type Noop struct{}

func (Noop) UserRegistered(context.Context, *domain.User) error    { return nil }
func (Noop) EmailVerified(context.Context, *domain.User) error     { return nil }
func (Noop) PasswordReset(context.Context, *domain.User) error     { return nil }
func (Noop) OAuthLinked(context.Context, *domain.User, bool) error { return nil }
