package domain

import "time"

// RefreshToken is the persisted side of a refresh JWT. The JWT id equals ID;
// only a salted hash of the token value is stored.
type RefreshToken struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (t *RefreshToken) ClosedAt() *time.Time { return t.RevokedAt }
func (t *RefreshToken) Expiry() time.Time    { return t.ExpiresAt }

// TokenPair is handed to the client after a successful authentication.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
