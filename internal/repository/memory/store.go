// Package memory is an in-process repository.Transactor. Transactions work
// on a private copy of the data that replaces the shared copy on commit, so
// a failed transaction leaves no trace.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wanderly/identity/internal/domain"
	"github.com/wanderly/identity/internal/repository"
	apperrors "github.com/wanderly/identity/pkg/errors"
)

type codeRecord struct {
	code domain.VerificationCode
	seq  int64
}

type state struct {
	users  map[string]domain.User
	codes  map[domain.CodePurpose]map[string]codeRecord
	tokens map[string]domain.RefreshToken
	seq    int64
}

func newState() *state {
	return &state{
		users: map[string]domain.User{},
		codes: map[domain.CodePurpose]map[string]codeRecord{
			domain.PurposeEmailVerification: {},
			domain.PurposePasswordReset:     {},
		},
		tokens: map[string]domain.RefreshToken{},
	}
}

func (s *state) clone() *state {
	c := &state{
		users:  make(map[string]domain.User, len(s.users)),
		codes:  make(map[domain.CodePurpose]map[string]codeRecord, len(s.codes)),
		tokens: make(map[string]domain.RefreshToken, len(s.tokens)),
		seq:    s.seq,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for p, m := range s.codes {
		cm := make(map[string]codeRecord, len(m))
		for k, v := range m {
			cm[k] = v
		}
		c.codes[p] = cm
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	return c
}

// DB implements repository.Transactor in memory. Transactions are fully
// serialized.
type DB struct {
	txMu sync.Mutex // held for the lifetime of a transaction
	mu   sync.Mutex // guards st and faults
	st   *state

	faults map[string]error
}

// New returns an empty store.
func New() *DB {
	return &DB{st: newState(), faults: map[string]error{}}
}

// FailOn makes the named operation (for example "RefreshTokens.Create")
// return err until cleared with a nil err.
func (d *DB) FailOn(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.faults, op)
		return
	}
	d.faults[op] = err
}

func (d *DB) fault(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.faults[op]
}

// view runs fn against the committed state outside any transaction.
func (d *DB) view(fn func(st *state) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(d.st)
}

func (d *DB) Users() repository.UserRepository {
	return &userRepo{db: d, run: d.view}
}

func (d *DB) Codes(purpose domain.CodePurpose) repository.CodeRepository {
	return &codeRepo{db: d, purpose: purpose, run: d.view}
}

func (d *DB) RefreshTokens() repository.RefreshTokenRepository {
	return &tokenRepo{db: d, run: d.view}
}

// WithTx runs fn against a snapshot and publishes it when fn returns nil.
func (d *DB) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.txMu.Lock()
	defer d.txMu.Unlock()

	d.mu.Lock()
	snapshot := d.st.clone()
	d.mu.Unlock()

	if err := fn(&txStore{db: d, st: snapshot}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	d.st = snapshot
	d.mu.Unlock()
	return nil
}

type txStore struct {
	db *DB
	st *state
}

func (t *txStore) run(fn func(st *state) error) error { return fn(t.st) }

func (t *txStore) Users() repository.UserRepository {
	return &userRepo{db: t.db, run: t.run}
}

func (t *txStore) Codes(purpose domain.CodePurpose) repository.CodeRepository {
	return &codeRepo{db: t.db, purpose: purpose, run: t.run}
}

func (t *txStore) RefreshTokens() repository.RefreshTokenRepository {
	return &tokenRepo{db: t.db, run: t.run}
}

type runner func(fn func(st *state) error) error

// --- Users ---

type userRepo struct {
	db  *DB
	run runner
}

func cloneUser(u domain.User) *domain.User {
	c := u
	if u.PasswordHash != nil {
		v := *u.PasswordHash
		c.PasswordHash = &v
	}
	if u.ExternalProviderID != nil {
		v := *u.ExternalProviderID
		c.ExternalProviderID = &v
	}
	if u.EmailVerifiedAt != nil {
		v := *u.EmailVerifiedAt
		c.EmailVerifiedAt = &v
	}
	return &c
}

func conflicts(st *state, u *domain.User) error {
	for id, other := range st.users {
		if id == u.ID {
			continue
		}
		if other.Email == u.Email {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		if u.ExternalProviderID != nil && other.ExternalProviderID != nil &&
			other.Provider == u.Provider && *other.ExternalProviderID == *u.ExternalProviderID {
			return apperrors.AlreadyExists("user", "external identity", u.Provider)
		}
	}
	return nil
}

func (r *userRepo) Create(_ context.Context, u *domain.User) error {
	if err := r.db.fault("Users.Create"); err != nil {
		return err
	}
	if err := u.Validate(); err != nil {
		return err
	}
	return r.run(func(st *state) error {
		if _, ok := st.users[u.ID]; ok {
			return apperrors.AlreadyExists("user", "id", u.ID)
		}
		if err := conflicts(st, u); err != nil {
			return err
		}
		st.users[u.ID] = *cloneUser(*u)
		return nil
	})
}

func (r *userRepo) find(match func(u domain.User) bool) (*domain.User, error) {
	var found *domain.User
	err := r.run(func(st *state) error {
		for _, u := range st.users {
			if match(u) {
				found = cloneUser(u)
				return nil
			}
		}
		return apperrors.ErrNotFound
	})
	return found, err
}

func (r *userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	if err := r.db.fault("Users.GetByID"); err != nil {
		return nil, err
	}
	return r.find(func(u domain.User) bool { return u.ID == id })
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if err := r.db.fault("Users.GetByEmail"); err != nil {
		return nil, err
	}
	return r.find(func(u domain.User) bool { return u.Email == email })
}

func (r *userRepo) GetByProvider(_ context.Context, provider, providerID string) (*domain.User, error) {
	return r.find(func(u domain.User) bool {
		return u.Provider == provider && u.ExternalProviderID != nil && *u.ExternalProviderID == providerID
	})
}

// LockByID is a plain read: transactions are already serialized.
func (r *userRepo) LockByID(ctx context.Context, id string) (*domain.User, error) {
	return r.GetByID(ctx, id)
}

func (r *userRepo) Update(_ context.Context, u *domain.User) error {
	if err := r.db.fault("Users.Update"); err != nil {
		return err
	}
	if err := u.Validate(); err != nil {
		return err
	}
	return r.run(func(st *state) error {
		if _, ok := st.users[u.ID]; !ok {
			return apperrors.NotFound("user", u.ID)
		}
		if err := conflicts(st, u); err != nil {
			return err
		}
		st.users[u.ID] = *cloneUser(*u)
		return nil
	})
}

func (r *userRepo) Delete(_ context.Context, id string) error {
	return r.run(func(st *state) error {
		if _, ok := st.users[id]; !ok {
			return apperrors.NotFound("user", id)
		}
		delete(st.users, id)
		for _, m := range st.codes {
			for k, c := range m {
				if c.code.UserID == id {
					delete(m, k)
				}
			}
		}
		for k, t := range st.tokens {
			if t.UserID == id {
				delete(st.tokens, k)
			}
		}
		return nil
	})
}

// --- Codes ---

type codeRepo struct {
	db      *DB
	purpose domain.CodePurpose
	run     runner
}

func (r *codeRepo) Latest(_ context.Context, userID string) (*domain.VerificationCode, error) {
	if err := r.db.fault("Codes.Latest"); err != nil {
		return nil, err
	}
	var latest *domain.VerificationCode
	err := r.run(func(st *state) error {
		var recs []codeRecord
		for _, c := range st.codes[r.purpose] {
			if c.code.UserID == userID {
				recs = append(recs, c)
			}
		}
		if len(recs) == 0 {
			return apperrors.ErrNotFound
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })
		c := recs[0].code
		latest = &c
		return nil
	})
	return latest, err
}

func (r *codeRepo) Create(_ context.Context, c *domain.VerificationCode) error {
	if err := r.db.fault("Codes.Create"); err != nil {
		return err
	}
	return r.run(func(st *state) error {
		if _, ok := st.users[c.UserID]; !ok {
			return apperrors.NotFound("user", c.UserID)
		}
		st.seq++
		rec := *c
		rec.Purpose = r.purpose
		st.codes[r.purpose][c.ID] = codeRecord{code: rec, seq: st.seq}
		return nil
	})
}

func (r *codeRepo) DeleteForUser(_ context.Context, userID string) error {
	return r.run(func(st *state) error {
		for k, c := range st.codes[r.purpose] {
			if c.code.UserID == userID {
				delete(st.codes[r.purpose], k)
			}
		}
		return nil
	})
}

func (r *codeRepo) IncrementAttempts(_ context.Context, id string) error {
	if err := r.db.fault("Codes.IncrementAttempts"); err != nil {
		return err
	}
	return r.run(func(st *state) error {
		rec, ok := st.codes[r.purpose][id]
		if !ok {
			return apperrors.ErrNotFound
		}
		rec.code.Attempts++
		st.codes[r.purpose][id] = rec
		return nil
	})
}

func (r *codeRepo) MarkConsumed(_ context.Context, id string, at time.Time) error {
	return r.run(func(st *state) error {
		rec, ok := st.codes[r.purpose][id]
		if !ok || rec.code.ConsumedAt != nil {
			return apperrors.ErrNotFound
		}
		rec.code.ConsumedAt = &at
		st.codes[r.purpose][id] = rec
		return nil
	})
}

// --- Refresh tokens ---

type tokenRepo struct {
	db  *DB
	run runner
}

func (r *tokenRepo) Create(_ context.Context, t *domain.RefreshToken) error {
	if err := r.db.fault("RefreshTokens.Create"); err != nil {
		return err
	}
	return r.run(func(st *state) error {
		if _, ok := st.tokens[t.ID]; ok {
			return apperrors.AlreadyExists("refresh token", "id", t.ID)
		}
		if _, ok := st.users[t.UserID]; !ok {
			return apperrors.NotFound("user", t.UserID)
		}
		st.tokens[t.ID] = *t
		return nil
	})
}

func (r *tokenRepo) GetForUpdate(_ context.Context, id string) (*domain.RefreshToken, error) {
	if err := r.db.fault("RefreshTokens.GetForUpdate"); err != nil {
		return nil, err
	}
	var out *domain.RefreshToken
	err := r.run(func(st *state) error {
		t, ok := st.tokens[id]
		if !ok {
			return apperrors.ErrNotFound
		}
		out = &t
		return nil
	})
	return out, err
}

func (r *tokenRepo) Revoke(_ context.Context, id string, at time.Time) (bool, error) {
	if err := r.db.fault("RefreshTokens.Revoke"); err != nil {
		return false, err
	}
	revoked := false
	err := r.run(func(st *state) error {
		t, ok := st.tokens[id]
		if !ok || t.RevokedAt != nil {
			return nil
		}
		t.RevokedAt = &at
		st.tokens[id] = t
		revoked = true
		return nil
	})
	return revoked, err
}

func (r *tokenRepo) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	if err := r.db.fault("RefreshTokens.RevokeAllForUser"); err != nil {
		return 0, err
	}
	var n int64
	err := r.run(func(st *state) error {
		for id, t := range st.tokens {
			if t.UserID == userID && t.RevokedAt == nil {
				t.RevokedAt = &at
				st.tokens[id] = t
				n++
			}
		}
		return nil
	})
	return n, err
}

// ActiveRefreshTokens counts open refresh tokens for a user. Tests use it to
// observe session state without going through a flow.
func (d *DB) ActiveRefreshTokens(userID string) int {
	n := 0
	_ = d.view(func(st *state) error {
		for _, t := range st.tokens {
			if t.UserID == userID && t.RevokedAt == nil {
				n++
			}
		}
		return nil
	})
	return n
}
