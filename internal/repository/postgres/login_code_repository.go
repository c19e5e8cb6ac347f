package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"resale-hub/internal/model"
	"resale-hub/internal/repository"
)

type loginCodeRepository struct {
	pool *pgxpool.Pool
}

func NewLoginCodeRepository(pool *pgxpool.Pool) repository.LoginCodeRepository {
	return &loginCodeRepository{pool: pool}
}

var _ repository.LoginCodeRepository = (*loginCodeRepository)(nil)

const loginCodeColumns = `
	telegram_id,
	code,
	issued_at,
	expires_at,
	last_used_at
`

func (r *loginCodeRepository) FindByCode(ctx context.Context, code string) (*model.LoginCode, error) {
	query := `SELECT ` + loginCodeColumns + ` FROM login_codes WHERE code = $1`
	rec, err := scanLoginCode(r.pool.QueryRow(ctx, query, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *loginCodeRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.LoginCode, error) {
	query := `SELECT ` + loginCodeColumns + ` FROM login_codes WHERE telegram_id = $1`
	rec, err := scanLoginCode(r.pool.QueryRow(ctx, query, telegramID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Refresh writes rec only when the user has no row yet or the stored code has
// already expired. The conditional upsert is a single statement, so two
// concurrent issuance calls cannot both install distinct live codes: one
// writes, the other observes the winner via a follow-up read.
func (r *loginCodeRepository) Refresh(ctx context.Context, rec *model.LoginCode) (bool, error) {
	query := `
		INSERT INTO login_codes (telegram_id, code, issued_at, expires_at, last_used_at)
		VALUES ($1, $2, $3, $4, NULL)
		ON CONFLICT (telegram_id) DO UPDATE
		SET code = EXCLUDED.code,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			last_used_at = NULL
		WHERE login_codes.expires_at <= EXCLUDED.issued_at
	`

	tag, err := r.pool.Exec(
		ctx,
		query,
		rec.TelegramID,
		rec.Code,
		rec.IssuedAt,
		rec.ExpiresAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *loginCodeRepository) TouchLastUsed(ctx context.Context, telegramID int64, usedAt time.Time) error {
	query := `UPDATE login_codes SET last_used_at = $2 WHERE telegram_id = $1`
	tag, err := r.pool.Exec(ctx, query, telegramID, usedAt)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *loginCodeRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM login_codes WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanLoginCode(src scanTarget) (*model.LoginCode, error) {
	rec := &model.LoginCode{}
	err := src.Scan(
		&rec.TelegramID,
		&rec.Code,
		&rec.IssuedAt,
		&rec.ExpiresAt,
		&rec.LastUsedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
