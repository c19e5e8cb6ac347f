package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"resale-hub/internal/model"
)

var ErrNotFound = errors.New("not found")

type Pagination struct {
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}

type UserListFilter struct {
	Role       *model.UserRole `json:"role,omitempty"`
	Keyword    *string         `json:"keyword,omitempty"`
	Pagination Pagination      `json:"pagination"`
}

type KeyListFilter struct {
	Type       *model.KeyType `json:"type,omitempty"`
	Depleted   *bool          `json:"depleted,omitempty"`
	Keyword    *string        `json:"keyword,omitempty"`
	Pagination Pagination     `json:"pagination"`
}

type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
	List(ctx context.Context, filter UserListFilter) ([]*model.User, error)
	Count(ctx context.Context, filter UserListFilter) (int64, error)
	DemoteExpiredVIP(ctx context.Context, now time.Time) (int64, error)
	CountActivePaid(ctx context.Context, now time.Time) (int64, error)
}

type LoginCodeRepository interface {
	FindByCode(ctx context.Context, code string) (*model.LoginCode, error)
	FindByTelegramID(ctx context.Context, telegramID int64) (*model.LoginCode, error)
	// Refresh installs a new code for the user unless a live one already
	// exists; it reports whether the write happened. The single-statement
	// guard is what makes concurrent issuance safe across processes.
	Refresh(ctx context.Context, rec *model.LoginCode) (bool, error)
	TouchLastUsed(ctx context.Context, telegramID int64, usedAt time.Time) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type RedemptionKeyRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.RedemptionKey, error)
	FindByCode(ctx context.Context, code string) (*model.RedemptionKey, error)
	Create(ctx context.Context, key *model.RedemptionKey) error
	UpdateMeta(ctx context.Context, id uuid.UUID, tag, assignedUser, note *string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter KeyListFilter) ([]*model.RedemptionKey, error)
	Count(ctx context.Context, filter KeyListFilter) (int64, error)
}

type AuditRepository interface {
	Create(ctx context.Context, log *model.AuditLog) error
}
