package prefs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"callingcard/internal/app/db"
)

// PGStore keeps preferences in the preferences table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore returns a store backed by pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Get(ctx context.Context, accountID, key string) ([]byte, error) {
	id, err := uuid.Parse(accountID)
	if err != nil || !ValidKey(key) {
		return nil, ErrNotFound
	}

	var value []byte
	err = s.pool.QueryRow(ctx, `SELECT value::text FROM preferences WHERE account_id = $1 AND key = $2`, id, key).Scan(&value)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get preference %q: %w", key, err)
	}
	return value, nil
}

func (s *PGStore) Put(ctx context.Context, accountID, key string, value []byte) error {
	if !ValidKey(key) {
		return ErrInvalidKey
	}

	id, err := uuid.Parse(accountID)
	if err != nil {
		return fmt.Errorf("put preference %q: invalid account id: %w", key, err)
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO preferences (account_id, key, value, updated_at)
VALUES ($1, $2, $3::jsonb, NOW())
ON CONFLICT (account_id, key) DO UPDATE
SET value = EXCLUDED.value, updated_at = NOW()
`, id, key, string(value))
	if err != nil {
		return fmt.Errorf("put preference %q: %w", key, err)
	}
	return nil
}
