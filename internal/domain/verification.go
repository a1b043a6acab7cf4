package domain

import "time"

// CodePurpose separates email verification codes from password reset codes.
// Each purpose has its own table and its own quotas.
type CodePurpose string

const (
	PurposeEmailVerification CodePurpose = "email_verification"
	PurposePasswordReset     CodePurpose = "password_reset"
)

// IsValid reports whether p is a known purpose.
func (p CodePurpose) IsValid() bool {
	return p == PurposeEmailVerification || p == PurposePasswordReset
}

// VerificationCode is a hashed one-time code sent by email.
type VerificationCode struct {
	ID         string
	UserID     string
	Purpose    CodePurpose
	CodeHash   string
	ExpiresAt  time.Time
	Attempts   int
	SentCount  int
	LastSentAt *time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

func (c *VerificationCode) ClosedAt() *time.Time { return c.ConsumedAt }
func (c *VerificationCode) Expiry() time.Time    { return c.ExpiresAt }
