package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"resale-hub/internal/model"
	"resale-hub/internal/repository"
)

type auditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) repository.AuditRepository {
	return &auditRepository{pool: pool}
}

var _ repository.AuditRepository = (*auditRepository)(nil)

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	newValue, err := encodeJSONMap(log.NewValue)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO audit_logs (user_id, action, resource_type, resource_id, new_value, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		log.UserID,
		log.Action,
		log.ResourceType,
		log.ResourceID,
		newValue,
		log.CreatedAt,
	)
	return err
}
