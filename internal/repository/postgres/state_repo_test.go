package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/docdesk/internal/errs"
	"github.com/and161185/docdesk/internal/repository"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func TestStateRepo_Get(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewStateRepo(db, "work")
	ctx := context.Background()

	mock.ExpectQuery(`SELECT value FROM client_state WHERE profile=\$1 AND key=\$2`).
		WithArgs("work", repository.KeySessionToken).
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow([]byte("sealed")))
	v, err := r.Get(ctx, repository.KeySessionToken)
	require.NoError(t, err)
	require.Equal(t, "sealed", string(v))

	mock.ExpectQuery(`SELECT value FROM client_state WHERE profile=\$1 AND key=\$2`).
		WithArgs("work", repository.KeySessionToken).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, repository.KeySessionToken)
	require.ErrorIs(t, err, errs.ErrNotFound)

	boom := errors.New("conn reset")
	mock.ExpectQuery(`SELECT value FROM client_state`).
		WithArgs("work", "k").
		WillReturnError(boom)
	_, err = r.Get(ctx, "k")
	require.ErrorIs(t, err, boom)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStateRepo_PutUpserts(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewStateRepo(db, "")
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO client_state \(profile, key, value, updated_at\) VALUES \(\$1, \$2, \$3, now\(\)\) ON CONFLICT \(profile, key\) DO UPDATE SET value=EXCLUDED.value, updated_at=now\(\)`).
		WithArgs("default", "k", []byte("v")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Put(ctx, "k", []byte("v")))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStateRepo_DeleteIdempotent(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewStateRepo(db, "p")
	ctx := context.Background()

	mock.ExpectExec(`DELETE FROM client_state WHERE profile=\$1 AND key=\$2`).
		WithArgs("p", "k").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM client_state WHERE profile=\$1 AND key=\$2`).
		WithArgs("p", "k").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.NoError(t, r.Delete(ctx, "k"))
	require.NoError(t, r.Delete(ctx, "k"))

	require.NoError(t, mock.ExpectationsWereMet())
}
