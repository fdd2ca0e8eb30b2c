package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/mindmesh/store"
)

func (d *DB) GetOrCreateUser(ctx context.Context, id string) (*store.User, error) {
	stmt := `
		INSERT INTO "user" (id, consent_global, created_ts)
		VALUES ($1, TRUE, $2)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := d.db.ExecContext(ctx, stmt, id, time.Now().Unix()); err != nil {
		return nil, errors.Wrapf(err, "failed to create user %s", id)
	}
	return d.GetUser(ctx, id)
}

func (d *DB) GetUser(ctx context.Context, id string) (*store.User, error) {
	user := &store.User{}
	err := d.db.QueryRowContext(ctx,
		`SELECT id, consent_global, created_ts FROM "user" WHERE id = $1`, id,
	).Scan(&user.ID, &user.ConsentGlobal, &user.CreatedTs)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(store.ErrNotFound, "user %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get user %s", id)
	}
	return user, nil
}

func (d *DB) SetUserConsentGlobal(ctx context.Context, id string, consent bool) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE "user" SET consent_global = $1 WHERE id = $2`, consent, id)
	if err != nil {
		return errors.Wrapf(err, "failed to update consent for user %s", id)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.Wrapf(store.ErrNotFound, "user %s", id)
	}
	return nil
}
