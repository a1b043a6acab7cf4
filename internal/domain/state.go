package domain

import "time"

// ActiveState classifies a single-use, time-limited record.
type ActiveState int

const (
	StateActive ActiveState = iota
	// StateClosed means consumed (codes) or revoked (refresh tokens).
	StateClosed
	StateExpired
)

func (s ActiveState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	case StateExpired:
		return "expired"
	}
	return "unknown"
}

// Expirable is implemented by records whose usability depends on a closing
// timestamp and an expiry.
type Expirable interface {
	ClosedAt() *time.Time
	Expiry() time.Time
}

// StateOf is the single place deciding whether a code or refresh token may
// still be used. A closed record stays closed even after it expires. A record
// is expired only once now is strictly past its expiry.
func StateOf(r Expirable, now time.Time) ActiveState {
	if r.ClosedAt() != nil {
		return StateClosed
	}
	if now.After(r.Expiry()) {
		return StateExpired
	}
	return StateActive
}
