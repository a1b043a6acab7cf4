package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wanderly/identity/internal/domain"
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Default lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

const defaultIssuer = "identity-service"

// Claims are the JWT claims for both token kinds. Subject carries the user id
// and ID (jti) is unique per token.
type Claims struct {
	Email string    `json:"email,omitempty"`
	Role  string    `json:"role,omitempty"`
	Kind  TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// Subject is who a token is issued for.
type Subject struct {
	UserID string
	Email  string
	Role   domain.Role
}

// SubjectOf builds a token subject from a user.
func SubjectOf(u *domain.User) Subject {
	return Subject{UserID: u.ID, Email: u.Email, Role: u.Role}
}

// Token is a signed token plus the metadata the caller may need to persist.
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// IssuedPair is an access/refresh pair with the refresh token's metadata.
type IssuedPair struct {
	Pair    domain.TokenPair
	Refresh Token
}

// Key is an HMAC signing key identified by the kid header.
type Key struct {
	ID     string
	Secret []byte
}

// SignerConfig configures a Signer.
type SignerConfig struct {
	ActiveKey    Key
	PreviousKeys []Key
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	Issuer       string
	Now          func() time.Time
}

// Signer issues and verifies HS256 tokens. It signs with the active key and
// accepts any configured key, so secrets can be rotated without logging
// everybody out.
type Signer struct {
	active     Key
	keys       map[string][]byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

// NewSigner validates cfg and returns a Signer.
func NewSigner(cfg SignerConfig) (*Signer, error) {
	if cfg.ActiveKey.ID == "" || len(cfg.ActiveKey.Secret) == 0 {
		return nil, errors.New("active signing key is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	keys := map[string][]byte{cfg.ActiveKey.ID: cfg.ActiveKey.Secret}
	for _, k := range cfg.PreviousKeys {
		if k.ID == "" || len(k.Secret) == 0 {
			return nil, fmt.Errorf("signing key %q is incomplete", k.ID)
		}
		if _, dup := keys[k.ID]; dup {
			return nil, fmt.Errorf("duplicate signing key id %q", k.ID)
		}
		keys[k.ID] = k.Secret
	}

	return &Signer{
		active:     cfg.ActiveKey,
		keys:       keys,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		issuer:     cfg.Issuer,
		now:        cfg.Now,
	}, nil
}

// Issue signs a token of the given kind for sub, valid for ttl.
func (s *Signer) Issue(sub Subject, kind TokenKind, ttl time.Duration) (Token, error) {
	now := s.now().UTC()
	tok := Token{ID: uuid.NewString(), ExpiresAt: now.Add(ttl).Truncate(time.Second)}

	claims := &Claims{
		Email: sub.Email,
		Kind:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			ID:        tok.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(tok.ExpiresAt),
		},
	}
	if kind == KindAccess {
		claims.Role = string(sub.Role)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = s.active.ID

	signed, err := token.SignedString(s.active.Secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	tok.Value = signed
	return tok, nil
}

// IssuePair signs a fresh access and refresh token for sub.
func (s *Signer) IssuePair(sub Subject) (IssuedPair, error) {
	access, err := s.Issue(sub, KindAccess, s.accessTTL)
	if err != nil {
		return IssuedPair{}, err
	}
	refresh, err := s.Issue(sub, KindRefresh, s.refreshTTL)
	if err != nil {
		return IssuedPair{}, err
	}
	return IssuedPair{
		Pair:    domain.TokenPair{AccessToken: access.Value, RefreshToken: refresh.Value},
		Refresh: refresh,
	}, nil
}

// Verify checks signature, algorithm, issuer and expiry. It returns
// domain.ErrTokenExpired for tokens past their lifetime and
// domain.ErrTokenInvalid for everything else.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

// VerifyAccess verifies an access token.
func (s *Signer) VerifyAccess(tokenString string) (*Claims, error) {
	return s.verifyKind(tokenString, KindAccess)
}

// VerifyRefresh verifies a refresh token.
func (s *Signer) VerifyRefresh(tokenString string) (*Claims, error) {
	return s.verifyKind(tokenString, KindRefresh)
}

func (s *Signer) verifyKind(tokenString string, kind TokenKind) (*Claims, error) {
	claims, err := s.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

func (s *Signer) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	kid, _ := token.Header["kid"].(string)
	secret, ok := s.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	return secret, nil
}
