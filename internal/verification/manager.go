// Package verification issues and checks the four-digit codes sent by email
// for address verification and password reset.
package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/wanderly/identity/internal/domain"
	"github.com/wanderly/identity/internal/repository"
	apperrors "github.com/wanderly/identity/pkg/errors"
)

// Defaults applied by DefaultConfig.
const (
	DefaultTTL         = 10 * time.Minute
	DefaultMaxAttempts = 5
	DefaultMaxResends  = 3

	codeMin = 1000
	codeMax = 9999
)

// Hasher hashes and checks secrets.
type Hasher interface {
	Hash(ctx context.Context, secret string) (string, error)
	Verify(ctx context.Context, secret, digest string) bool
}

// Config holds the quotas and the injectable clock and code source.
type Config struct {
	TTL         time.Duration
	MaxAttempts int
	MaxResends  int

	Now      func() time.Time
	Generate func() (string, error)
}

// DefaultConfig returns a 10 minute TTL, 5 attempts and 3 resends.
func DefaultConfig() Config {
	return Config{
		TTL:         DefaultTTL,
		MaxAttempts: DefaultMaxAttempts,
		MaxResends:  DefaultMaxResends,
		Now:         time.Now,
		Generate:    RandomCode,
	}
}

// RandomCode returns a uniformly random code in [1000, 9999].
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+codeMin), nil
}

// Manager handles codes of one purpose. Every method works on the store it
// is given so callers decide the transaction boundary.
type Manager struct {
	purpose domain.CodePurpose
	hasher  Hasher
	cfg     Config
}

// NewManager creates a Manager. Zero fields in cfg fall back to defaults.
func NewManager(purpose domain.CodePurpose, hasher Hasher, cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.MaxResends <= 0 {
		cfg.MaxResends = def.MaxResends
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	if cfg.Generate == nil {
		cfg.Generate = def.Generate
	}
	return &Manager{purpose: purpose, hasher: hasher, cfg: cfg}
}

// TTL returns how long an issued code stays valid.
func (m *Manager) TTL() time.Duration {
	return m.cfg.TTL
}

// Issue replaces any code the user holds with a fresh one and returns its
// plaintext.
func (m *Manager) Issue(ctx context.Context, store repository.Store, userID string) (string, error) {
	return m.issue(ctx, store, userID, 0)
}

// Resend issues a new code that carries the previous send counter plus one.
// It fails with domain.ErrResendLimitExceeded once the counter reaches
// MaxResends.
func (m *Manager) Resend(ctx context.Context, store repository.Store, userID string) (string, error) {
	prior, err := store.Codes(m.purpose).Latest(ctx, userID)
	sent := 0
	switch {
	case err == nil:
		if prior.SentCount >= m.cfg.MaxResends {
			return "", domain.ErrResendLimitExceeded
		}
		sent = prior.SentCount
	case errors.Is(err, apperrors.ErrNotFound):
	default:
		return "", fmt.Errorf("load %s code: %w", m.purpose, err)
	}
	return m.issue(ctx, store, userID, sent+1)
}

func (m *Manager) issue(ctx context.Context, store repository.Store, userID string, sentCount int) (string, error) {
	code, err := m.cfg.Generate()
	if err != nil {
		return "", err
	}
	digest, err := m.hasher.Hash(ctx, code)
	if err != nil {
		return "", fmt.Errorf("hash %s code: %w", m.purpose, err)
	}

	repo := store.Codes(m.purpose)
	if err := repo.DeleteForUser(ctx, userID); err != nil {
		return "", err
	}

	now := m.cfg.Now().UTC()
	record := &domain.VerificationCode{
		ID:         uuid.NewString(),
		UserID:     userID,
		Purpose:    m.purpose,
		CodeHash:   digest,
		ExpiresAt:  now.Add(m.cfg.TTL),
		SentCount:  sentCount,
		LastSentAt: &now,
		CreatedAt:  now,
	}
	if err := repo.Create(ctx, record); err != nil {
		return "", err
	}
	return code, nil
}

// Consume checks candidate against the user's current code. Checks run in a
// fixed order: missing or consumed, expired, attempts exhausted, mismatch.
// A mismatch increments the attempt counter through store, so the caller must
// commit even when domain.ErrInvalidCode is returned.
func (m *Manager) Consume(ctx context.Context, store repository.Store, userID, candidate string) error {
	repo := store.Codes(m.purpose)

	record, err := repo.Latest(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.ErrCodeNotFound
		}
		return fmt.Errorf("load %s code: %w", m.purpose, err)
	}

	now := m.cfg.Now().UTC()
	switch domain.StateOf(record, now) {
	case domain.StateClosed:
		return domain.ErrCodeNotFound
	case domain.StateExpired:
		return domain.ErrCodeExpired
	}

	if record.Attempts >= m.cfg.MaxAttempts {
		return domain.ErrAttemptsExceeded
	}

	if !m.hasher.Verify(ctx, candidate, record.CodeHash) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := repo.IncrementAttempts(ctx, record.ID); err != nil {
			return fmt.Errorf("record failed %s attempt: %w", m.purpose, err)
		}
		return domain.ErrInvalidCode
	}

	if err := repo.MarkConsumed(ctx, record.ID, now); err != nil {
		return fmt.Errorf("consume %s code: %w", m.purpose, err)
	}
	return nil
}

// IsDomainFailure reports whether err is an expected outcome of Consume that
// should still be committed, as opposed to an infrastructure failure.
func IsDomainFailure(err error) bool {
	var de *domain.DomainError
	return errors.As(err, &de)
}
