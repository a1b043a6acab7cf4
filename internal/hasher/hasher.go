// Package hasher turns secrets (passwords, one-time codes, refresh tokens)
// into salted one-way digests and checks candidates against them.
package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used outside tests.
const DefaultCost = 12

// Bcrypt hashes secrets with bcrypt. Inputs are reduced to their SHA-256 hex
// digest first because bcrypt ignores everything past 72 bytes and refresh
// JWTs are longer than that.
type Bcrypt struct {
	cost int
}

// New returns a hasher with the given bcrypt cost.
func New(cost int) (*Bcrypt, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Bcrypt{cost: cost}, nil
}

func prehash(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum[:])
	return out
}

// Hash returns a salted digest of secret. Two calls with the same secret
// return different digests.
func (h *Bcrypt) Hash(ctx context.Context, secret string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	digest, err := bcrypt.GenerateFromPassword(prehash(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether secret matches digest. A cancelled context or a
// malformed digest yields false.
func (h *Bcrypt) Verify(ctx context.Context, secret, digest string) bool {
	if ctx.Err() != nil || digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), prehash(secret)) == nil
}
