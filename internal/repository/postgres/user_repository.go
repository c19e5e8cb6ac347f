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

type userRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return &userRepository{pool: pool}
}

var _ repository.UserRepository = (*userRepository)(nil)

const userColumns = `
	id,
	role,
	vip_until,
	vip_active,
	telegram_id,
	telegram_username,
	tag,
	assigned_user,
	note,
	created_at,
	updated_at
`

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *userRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`
	user, err := scanUser(r.pool.QueryRow(ctx, query, telegramID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
	if user.Role == "" {
		user.Role = model.UserRoleFree
	}

	query := `
		INSERT INTO users (
			id, role, vip_until, vip_active, telegram_id,
			telegram_username, tag, assigned_user, note,
			created_at, updated_at
		)
		VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11
		)
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		user.ID,
		user.Role,
		user.VIPUntil,
		user.VIPActive,
		user.TelegramID,
		user.TelegramUsername,
		user.Tag,
		user.AssignedUser,
		user.Note,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return err
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE users
		SET role = $2,
			vip_until = $3,
			vip_active = $4,
			telegram_username = $5,
			tag = $6,
			assigned_user = $7,
			note = $8,
			updated_at = $9
		WHERE id = $1
	`

	tag, err := r.pool.Exec(
		ctx,
		query,
		user.ID,
		user.Role,
		user.VIPUntil,
		user.VIPActive,
		user.TelegramUsername,
		user.Tag,
		user.AssignedUser,
		user.Note,
		user.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *userRepository) List(ctx context.Context, filter repository.UserListFilter) ([]*model.User, error) {
	limit, offset := normalizePagination(filter.Pagination)

	args := make([]any, 0, 4)
	conditions := buildUserListConditions(filter, &args)

	var builder strings.Builder
	builder.WriteString("SELECT ")
	builder.WriteString(userColumns)
	builder.WriteString(" FROM users")

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

	users := make([]*model.User, 0, limit)
	for rows.Next() {
		item, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (r *userRepository) Count(ctx context.Context, filter repository.UserListFilter) (int64, error) {
	args := make([]any, 0, 2)
	conditions := buildUserListConditions(filter, &args)

	var builder strings.Builder
	builder.WriteString("SELECT COUNT(*) FROM users")
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

// DemoteExpiredVIP is storage hygiene only. Reads always derive the tier at
// request time, so the column can lag behind without granting anything.
func (r *userRepository) DemoteExpiredVIP(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET role = 'free', updated_at = $1
		 WHERE role = 'vip'
		   AND (vip_until IS NULL OR vip_until <= $1)
		   AND (vip_active IS NULL OR vip_active = FALSE)`,
		now,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *userRepository) CountActivePaid(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users
		 WHERE role IN ('vip', 'gold', 'admin')
		    OR vip_active = TRUE
		    OR (vip_until IS NOT NULL AND vip_until > $1)`,
		now,
	).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func buildUserListConditions(filter repository.UserListFilter, args *[]any) []string {
	conditions := make([]string, 0, 2)

	if filter.Role != nil {
		*args = append(*args, *filter.Role)
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(*args)))
	}
	if filter.Keyword != nil {
		keyword := "%" + strings.TrimSpace(*filter.Keyword) + "%"
		*args = append(*args, keyword)
		argPos := len(*args)
		conditions = append(conditions, fmt.Sprintf(
			"(telegram_username ILIKE $%d OR tag ILIKE $%d OR note ILIKE $%d OR CAST(telegram_id AS TEXT) LIKE $%d)",
			argPos, argPos, argPos, argPos,
		))
	}

	return conditions
}

func scanUser(src scanTarget) (*model.User, error) {
	user := &model.User{}
	err := src.Scan(
		&user.ID,
		&user.Role,
		&user.VIPUntil,
		&user.VIPActive,
		&user.TelegramID,
		&user.TelegramUsername,
		&user.Tag,
		&user.AssignedUser,
		&user.Note,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return user, nil
}
