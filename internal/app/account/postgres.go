package account

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"callingcard/internal/app/db"
)

// PGRepository stores accounts in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository returns a repository backed by pool.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const accountColumns = `id::text, email, name, photo_url, nearby_consent, created_at, COALESCE(last_sign_in_at, created_at)`

func (r *PGRepository) SignIn(ctx context.Context, params SignInParams) (Account, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO accounts (id, email, name, photo_url, last_sign_in_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (email) DO UPDATE
SET name = EXCLUDED.name,
    photo_url = CASE WHEN EXCLUDED.photo_url = '' THEN accounts.photo_url ELSE EXCLUDED.photo_url END,
    last_sign_in_at = NOW()
RETURNING `+accountColumns, uuid.New(), params.Email, params.Name, params.PhotoURL)

	a, err := scanAccount(row)
	if err != nil {
		return Account{}, fmt.Errorf("sign in account: %w", err)
	}
	return a, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}

	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)

	a, err := scanAccount(row)
	if err != nil {
		if db.IsNoRows(err) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *PGRepository) SetNearbyConsent(ctx context.Context, id string, consent bool) error {
	return r.exec(ctx, "set nearby consent", `UPDATE accounts SET nearby_consent = $2 WHERE id = $1`, id, consent)
}

func (r *PGRepository) HasNearbyConsent(ctx context.Context, id string) (bool, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}

	var consent bool
	err = r.pool.QueryRow(ctx, `SELECT nearby_consent FROM accounts WHERE id = $1`, accountID).Scan(&consent)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("get nearby consent: %w", err)
	}
	return consent, nil
}

func (r *PGRepository) SetPhotoURL(ctx context.Context, id string, photoURL string) error {
	return r.exec(ctx, "set photo url", `UPDATE accounts SET photo_url = $2 WHERE id = $1`, id, photoURL)
}

func (r *PGRepository) exec(ctx context.Context, op, query string, id string, arg any) error {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}

	tag, err := r.pool.Exec(ctx, query, accountID, arg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PhotoURL, &a.NearbyConsent, &a.CreatedAt, &a.LastSignInAt)
	return a, err
}
