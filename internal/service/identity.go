// Package service implements the identity flows: signup, email
// verification, login, token refresh, password reset and OAuth linking.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wanderly/identity/internal/auth"
	"github.com/wanderly/identity/internal/domain"
	"github.com/wanderly/identity/internal/event"
	"github.com/wanderly/identity/internal/mailer"
	"github.com/wanderly/identity/internal/metrics"
	"github.com/wanderly/identity/internal/repository"
	"github.com/wanderly/identity/internal/session"
	"github.com/wanderly/identity/internal/verification"
	apperrors "github.com/wanderly/identity/pkg/errors"
	"github.com/wanderly/identity/pkg/logger"
)

// Hasher hashes and checks passwords, codes and refresh tokens.
type Hasher interface {
	Hash(ctx context.Context, secret string) (string, error)
	Verify(ctx context.Context, secret, digest string) bool
}

// Dependencies are the collaborators of IdentityService. Events, Metrics and
// Now are optional.
type Dependencies struct {
	Store      repository.Transactor
	Hasher     Hasher
	Signer     *auth.Signer
	Sessions   *session.Store
	VerifyCode *verification.Manager
	ResetCode  *verification.Manager
	Mailer     mailer.Dispatcher
	Events     event.Publisher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

// IdentityService implements the account and session lifecycle.
type IdentityService struct {
	store      repository.Transactor
	hasher     Hasher
	signer     *auth.Signer
	sessions   *session.Store
	verifyCode *verification.Manager
	resetCode  *verification.Manager
	mailer     mailer.Dispatcher
	events     event.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	// dummyHash is compared against when the account does not exist so a
	// login for an unknown address costs as much as one with a bad password.
	dummyHash string
}

// NewIdentityService checks deps and creates the service.
func NewIdentityService(deps Dependencies) (*IdentityService, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("identity service: store is required")
	case deps.Hasher == nil:
		return nil, errors.New("identity service: hasher is required")
	case deps.Signer == nil:
		return nil, errors.New("identity service: signer is required")
	case deps.Sessions == nil:
		return nil, errors.New("identity service: session store is required")
	case deps.VerifyCode == nil || deps.ResetCode == nil:
		return nil, errors.New("identity service: code managers are required")
	case deps.Mailer == nil:
		return nil, errors.New("identity service: mailer is required")
	case deps.Logger == nil:
		return nil, errors.New("identity service: logger is required")
	}
	if deps.Events == nil {
		deps.Events = event.Noop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	dummy, err := deps.Hasher.Hash(context.Background(), "identity-service-timing-guard")
	if err != nil {
		return nil, fmt.Errorf("hash timing guard: %w", err)
	}

	return &IdentityService{
		store:      deps.Store,
		hasher:     deps.Hasher,
		signer:     deps.Signer,
		sessions:   deps.Sessions,
		verifyCode: deps.VerifyCode,
		resetCode:  deps.ResetCode,
		mailer:     deps.Mailer,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        deps.Now,
		dummyHash:  dummy,
	}, nil
}

// log returns the request-scoped logger.
func (s *IdentityService) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, s.logger)
}

// observe counts the outcome of a flow.
func (s *IdentityService) observe(flow string, err error) {
	switch {
	case err == nil:
		s.metrics.AuthEvent(flow, metrics.OutcomeSuccess)
	case isExpected(err):
		s.metrics.AuthEvent(flow, metrics.OutcomeRejected)
	default:
		s.metrics.AuthEvent(flow, metrics.OutcomeError)
	}
}

// isExpected reports whether err is a business or validation outcome rather
// than an infrastructure failure.
func isExpected(err error) bool {
	if errors.Is(err, domain.ErrEmailDispatchFailed) {
		return false
	}
	var de *domain.DomainError
	if errors.As(err, &de) {
		return true
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Status < 500
	}
	return isValidation(err)
}

// userByEmail loads a user by normalized address, turning a missing row into
// domain.ErrUserNotFound.
func (s *IdentityService) userByEmail(ctx context.Context, store repository.Store, email string) (*domain.User, error) {
	u, err := store.Users().GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// lockUser takes the row lock every per-user transaction starts with.
func lockUser(ctx context.Context, tx repository.Store, id string) (*domain.User, error) {
	u, err := tx.Users().LockByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("lock user: %w", err)
	}
	return u, nil
}

// issueSession signs a pair for u and persists its refresh half through store.
func (s *IdentityService) issueSession(ctx context.Context, store repository.Store, u *domain.User) (*domain.TokenPair, error) {
	issued, err := s.signer.IssuePair(auth.SubjectOf(u))
	if err != nil {
		return nil, fmt.Errorf("issue token pair: %w", err)
	}
	if err := s.sessions.Issue(ctx, store, session.New{
		TokenID:   issued.Refresh.ID,
		UserID:    u.ID,
		Value:     issued.Refresh.Value,
		ExpiresAt: issued.Refresh.ExpiresAt,
	}); err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}
	pair := issued.Pair
	return &pair, nil
}

// dispatch sends msg. A failure is reported as domain.ErrEmailDispatchFailed
// with the transport error attached.
func (s *IdentityService) dispatch(ctx context.Context, msg mailer.Message) error {
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log(ctx).ErrorContext(ctx, "failed to send email",
			slog.String("to", logger.MaskEmail(msg.To)),
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %w", domain.ErrEmailDispatchFailed, err)
	}
	return nil
}

func ttlMinutes(d time.Duration) int {
	m := int(d / time.Minute)
	if m < 1 {
		return 1
	}
	return m
}

// publishFailed logs an event that could not be published. Events are not
// part of the flow's outcome.
func (s *IdentityService) publishFailed(ctx context.Context, name, userID string, err error) {
	s.log(ctx).ErrorContext(ctx, "failed to publish "+name+" event",
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
}
