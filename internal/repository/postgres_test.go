package repository_test

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerosuite/platform/internal/repository"
)

func newMockStore(t *testing.T) (*repository.PostgresStore, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return repository.NewPostgresStore(sqlxDB, "customers"), mock, func() { db.Close() }
}

func TestPostgresStore_GetFound(t *testing.T) {
	store, mock, closeFn := newMockStore(t)
	defer closeFn()

	rows := sqlmock.NewRows([]string{"id", "version", "data"}).
		AddRow("C1", int64(2), []byte(`{"id":"C1","email":"a@x.com"}`))
	mock.ExpectQuery(`SELECT id, version, data FROM customers WHERE id = \$1`).
		WithArgs("C1").
		WillReturnRows(rows)

	row, found, err := store.Get(context.Background(), "C1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(2), row.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	store, mock, closeFn := newMockStore(t)
	defer closeFn()

	mock.ExpectQuery(`SELECT id, version, data FROM customers WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "data"}))

	_, found, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPostgresStore_UpsertStaleVersionConflict(t *testing.T) {
	store, mock, closeFn := newMockStore(t)
	defer closeFn()

	mock.ExpectExec(`UPDATE customers SET version = \$1, data = \$2, updated_at = now\(\)`).
		WithArgs(int64(3), []byte(`{}`), "C1", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Upsert(context.Background(), "C1", []byte(`{}`), 2, 3)
	assert.ErrorIs(t, err, repository.ErrStale)
}

func TestPostgresStore_UpsertNewRow(t *testing.T) {
	store, mock, closeFn := newMockStore(t)
	defer closeFn()

	mock.ExpectExec(`INSERT INTO customers`).
		WithArgs("C1", int64(1), []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Upsert(context.Background(), "C1", []byte(`{}`), 0, 1)
	assert.NoError(t, err)
}

func TestPostgresStore_Delete(t *testing.T) {
	store, mock, closeFn := newMockStore(t)
	defer closeFn()

	mock.ExpectExec(`DELETE FROM customers WHERE id = \$1`).
		WithArgs("C1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := store.Delete(context.Background(), "C1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPostgresStore_GetRetriesTransientError(t *testing.T) {
	store, mock, closeFn := newMockStore(t)
	defer closeFn()

	mock.ExpectQuery(`SELECT id, version, data FROM customers WHERE id = \$1`).
		WithArgs("C1").
		WillReturnError(assert.AnError)
	rows := sqlmock.NewRows([]string{"id", "version", "data"}).
		AddRow("C1", int64(1), []byte(`{"id":"C1"}`))
	mock.ExpectQuery(`SELECT id, version, data FROM customers WHERE id = \$1`).
		WithArgs("C1").
		WillReturnRows(rows)

	row, found, err := store.Get(context.Background(), "C1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "C1", row.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
