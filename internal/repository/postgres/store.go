package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wanderly/identity/internal/domain"
	"github.com/wanderly/identity/internal/repository"
	"github.com/wanderly/identity/pkg/database"
)

// Store implements repository.Store on top of a pool or a transaction.
type Store struct {
	db database.DBTX
}

func newStore(db database.DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) Users() repository.UserRepository {
	return NewUserRepository(s.db)
}

func (s *Store) Codes(purpose domain.CodePurpose) repository.CodeRepository {
	return NewCodeRepository(s.db, purpose)
}

func (s *Store) RefreshTokens() repository.RefreshTokenRepository {
	return NewRefreshTokenRepository(s.db)
}

// DB is the pool-backed entry point implementing repository.Transactor.
type DB struct {
	*Store
	pool database.TxDB
}

// NewDB wraps a pgx pool (or pgxmock pool in tests).
func NewDB(pool database.TxDB) *DB {
	return &DB{Store: newStore(pool), pool: pool}
}

// WithTx runs fn against a read-committed transaction.
func (d *DB) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return database.WithTx(ctx, d.pool, database.ReadCommitted, func(tx pgx.Tx) error {
		return fn(newStore(tx))
	})
}

// isUniqueViolation reports a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// exec runs a statement inside a db.<op> span.
func exec(ctx context.Context, db database.DBTX, op, query string, args ...any) (pgconn.CommandTag, error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	ct, err := db.Exec(ctx, query, args...)
	end(err)
	return ct, err
}

// scanRow runs a single-row query inside a db.<op> span. A missing row is
// not recorded as a span error.
func scanRow(ctx context.Context, db database.DBTX, op, query string, args []any, dest ...any) error {
	ctx, end := database.TraceQuery(ctx, op, query)
	err := db.QueryRow(ctx, query, args...).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		end(nil)
	} else {
		end(err)
	}
	return err
}
