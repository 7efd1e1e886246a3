package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/docdesk/internal/errs"
	"github.com/and161185/docdesk/internal/repository"
)

// StateRepo implements StateRepository on the client_state table.
// Rows are scoped by profile so several client profiles can share one database.
type StateRepo struct {
	db      *DB
	profile string
}

var _ repository.StateRepository = (*StateRepo)(nil)

// NewStateRepo constructs a state repository for profile.
func NewStateRepo(db *DB, profile string) *StateRepo {
	if profile == "" {
		profile = "default"
	}
	return &StateRepo{db: db, profile: profile}
}

// Get selects the value for key.
func (r *StateRepo) Get(ctx context.Context, key string) ([]byte, error) {
	const q = `SELECT value FROM client_state WHERE profile=$1 AND key=$2`
	var v []byte
	if err := r.db.Pool.QueryRow(ctx, q, r.profile, key).Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

// Put upserts the value for key.
func (r *StateRepo) Put(ctx context.Context, key string, value []byte) error {
	const q = `
INSERT INTO client_state (profile, key, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (profile, key)
DO UPDATE SET value=EXCLUDED.value, updated_at=now()`
	_, err := r.db.Pool.Exec(ctx, q, r.profile, key, value)
	return err
}

// Delete removes the row for key, if any.
func (r *StateRepo) Delete(ctx context.Context, key string) error {
	const q = `DELETE FROM client_state WHERE profile=$1 AND key=$2`
	_, err := r.db.Pool.Exec(ctx, q, r.profile, key)
	return err
}
