package sqlite

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *KVStore {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewKVStore(db)
	require.NoError(t, s.Init(context.Background()))
	return s
}

func TestKVStore_GetMissing(t *testing.T) {
	s := setupStore(t)

	v, found, err := s.Get(context.Background(), "users")
	require.NoError(t, err)
	require.False(t, found)
	require.Nil(t, v)
}

func TestKVStore_SetThenGet(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "users", []byte(`[{"id":1}]`)))

	v, found, err := s.Get(ctx, "users")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `[{"id":1}]`, string(v))
}

func TestKVStore_SetOverwrites(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "currentUser", []byte("old")))
	require.NoError(t, s.Set(ctx, "currentUser", []byte("new")))

	v, _, err := s.Get(ctx, "currentUser")
	require.NoError(t, err)
	require.Equal(t, "new", string(v))
}

func TestKVStore_Delete(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "currentUser", []byte("x")))
	require.NoError(t, s.Delete(ctx, "currentUser"))
	require.NoError(t, s.Delete(ctx, "currentUser"))

	_, found, err := s.Get(ctx, "currentUser")
	require.NoError(t, err)
	require.False(t, found)
}

func TestKVStore_InitIsIdempotent(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.Init(context.Background()))
}

func TestKVStore_ErrorsAreWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("disk I/O error")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM kv_store WHERE key = ?`)).
		WithArgs("users").
		WillReturnError(boom)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO kv_store`)).
		WillReturnError(boom)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM kv_store WHERE key = ?`)).
		WithArgs("users").
		WillReturnError(boom)

	s := NewKVStore(db)
	ctx := context.Background()

	_, _, err = s.Get(ctx, "users")
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, s.Set(ctx, "users", []byte("[]")), boom)
	require.ErrorIs(t, s.Delete(ctx, "users"), boom)
	require.NoError(t, mock.ExpectationsWereMet())
}
