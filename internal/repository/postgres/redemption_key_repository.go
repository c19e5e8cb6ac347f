package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"resale-hub/internal/model"
	"resale-hub/internal/repository"
)

type redemptionKeyRepository struct {
	pool *pgxpool.Pool
}

func NewRedemptionKeyRepository(pool *pgxpool.Pool) repository.RedemptionKeyRepository {
	return &redemptionKeyRepository{pool: pool}
}

var _ repository.RedemptionKeyRepository = (*redemptionKeyRepository)(nil)

const redemptionKeyColumns = `
	id,
	code,
	type,
	duration_days,
	max_uses,
	used_count,
	expires_at,
	tag,
	assigned_user,
	note,
	created_by,
	created_at
`

func (r *redemptionKeyRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.RedemptionKey, error) {
	query := `SELECT ` + redemptionKeyColumns + ` FROM redemption_keys WHERE id = $1`
	key, err := scanRedemptionKey(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (r *redemptionKeyRepository) FindByCode(ctx context.Context, code string) (*model.RedemptionKey, error) {
	query := `SELECT ` + redemptionKeyColumns + ` FROM redemption_keys WHERE code = $1`
	key, err := scanRedemptionKey(r.pool.QueryRow(ctx, query, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (r *redemptionKeyRepository) Create(ctx context.Context, key *model.RedemptionKey) error {
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO redemption_keys (
			id, code, type, duration_days, max_uses,
			used_count, expires_at, tag, assigned_user, note,
			created_by, created_at
		)
		VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12
		)
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		key.ID,
		key.Code,
		key.Type,
		key.DurationDays,
		key.MaxUses,
		key.UsedCount,
		key.ExpiresAt,
		key.Tag,
		key.AssignedUser,
		key.Note,
		key.CreatedBy,
		key.CreatedAt,
	)
	return err
}

func (r *redemptionKeyRepository) UpdateMeta(ctx context.Context, id uuid.UUID, tag, assignedUser, note *string) error {
	query := `
		UPDATE redemption_keys
		SET tag = $2,
			assigned_user = $3,
			note = $4
		WHERE id = $1
	`

	cmdTag, err := r.pool.Exec(ctx, query, id, tag, assignedUser, note)
	if err != nil {
		return err
	}
	return ensureAffected(cmdTag)
}

func (r *redemptionKeyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM redemption_keys WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *redemptionKeyRepository) List(ctx context.Context, filter repository.KeyListFilter) ([]*model.RedemptionKey, error) {
	limit, offset := normalizePagination(filter.Pagination)

	args := make([]any, 0, 4)
	conditions := buildKeyListConditions(filter, &args)

	var builder strings.Builder
	builder.WriteString("SELECT ")
	builder.WriteString(redemptionKeyColumns)
	builder.WriteString(" FROM redemption_keys")

	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	args = append(args, limit, offset)
	_, _ = fmt.Fprintf(&builder, " ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, builder.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]*model.RedemptionKey, 0, limit)
	for rows.Next() {
		item, err := scanRedemptionKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return keys, nil
}

func (r *redemptionKeyRepository) Count(ctx context.Context, filter repository.KeyListFilter) (int64, error) {
	args := make([]any, 0, 3)
	conditions := buildKeyListConditions(filter, &args)

	var builder strings.Builder
	builder.WriteString("SELECT COUNT(*) FROM redemption_keys")
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, builder.String(), args...).Scan(&total); err != nil {
		return 0, err
	}

	return total, nil
}

func buildKeyListConditions(filter repository.KeyListFilter, args *[]any) []string {
	conditions := make([]string, 0, 3)

	if filter.Type != nil {
		*args = append(*args, *filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(*args)))
	}
	if filter.Depleted != nil {
		if *filter.Depleted {
			conditions = append(conditions, "max_uses IS NOT NULL AND used_count >= max_uses")
		} else {
			conditions = append(conditions, "(max_uses IS NULL OR used_count < max_uses)")
		}
	}
	if filter.Keyword != nil {
		keyword := "%" + strings.TrimSpace(*filter.Keyword) + "%"
		*args = append(*args, keyword)
		argPos := len(*args)
		conditions = append(conditions, fmt.Sprintf(
			"(code ILIKE $%d OR tag ILIKE $%d OR assigned_user ILIKE $%d OR note ILIKE $%d)",
			argPos, argPos, argPos, argPos,
		))
	}

	return conditions
}

func scanRedemptionKey(src scanTarget) (*model.RedemptionKey, error) {
	key := &model.RedemptionKey{}
	err := src.Scan(
		&key.ID,
		&key.Code,
		&key.Type,
		&key.DurationDays,
		&key.MaxUses,
		&key.UsedCount,
		&key.ExpiresAt,
		&key.Tag,
		&key.AssignedUser,
		&key.Note,
		&key.CreatedBy,
		&key.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return key, nil
}
