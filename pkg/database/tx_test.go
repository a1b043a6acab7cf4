package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestWithTx_Commit(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectBeginTx(ReadCommitted)
	mock.ExpectExec("UPDATE users").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := WithTx(context.Background(), mock, ReadCommitted, func(tx pgx.Tx) error {
		_, err := tx.Exec(context.Background(), "UPDATE users SET name = 'x'")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackOnError(t *testing.T) {
	mock := newMockPool(t)
	boom := errors.New("boom")

	mock.ExpectBeginTx(ReadCommitted)
	mock.ExpectRollback()

	err := WithTx(context.Background(), mock, ReadCommitted, func(pgx.Tx) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectBeginTx(ReadCommitted)
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = WithTx(context.Background(), mock, ReadCommitted, func(pgx.Tx) error { panic("bad") })
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_BeginFails(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBeginTx(ReadCommitted).WillReturnError(errors.New("pool closed"))

	called := false
	err := WithTx(context.Background(), mock, ReadCommitted, func(pgx.Tx) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
	assert.False(t, called)
}

func TestWithTx_CommitFails(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectBeginTx(ReadCommitted)
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	err := WithTx(context.Background(), mock, ReadCommitted, func(pgx.Tx) error { return nil })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit tx")
}

func TestRunMigrations_AppliesPendingFiles(t *testing.T) {
	mock := newMockPool(t)
	files := fstest.MapFS{
		"0001_users.up.sql":   {Data: []byte("CREATE TABLE users (id UUID)")},
		"0001_users.down.sql": {Data: []byte("DROP TABLE users")},
		"0002_codes.up.sql":   {Data: []byte("CREATE TABLE codes (id UUID)")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	mock.ExpectQuery("SELECT EXISTS").WithArgs("0001_users.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	mock.ExpectQuery("SELECT EXISTS").WithArgs("0002_codes.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBeginTx(ReadCommitted)
	mock.ExpectExec("CREATE TABLE codes").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("0002_codes.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, RunMigrations(context.Background(), mock, files, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_SQLErrorIsNotRetried(t *testing.T) {
	mock := newMockPool(t)
	files := fstest.MapFS{"0001_bad.up.sql": {Data: []byte("CREATE TABLE (")}}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("0001_bad.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBeginTx(ReadCommitted)
	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("syntax error at or near \"(\""))
	mock.ExpectRollback()

	err := RunMigrations(context.Background(), mock, files, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute migration 0001_bad.up.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}
