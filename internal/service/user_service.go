package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"resale-hub/internal/metrics"
	"resale-hub/internal/model"
	"resale-hub/internal/repository"
)

var ErrInvalidRole = errors.New("invalid role")

// UpdateUserInput carries the admin-editable fields. Nil leaves a field
// untouched. VIPUntil sets the expiry to an exact instant and ClearVIPUntil
// removes it; AddDays then shifts by the given number of days from whichever
// is later, the resulting expiry or now.
type UpdateUserInput struct {
	Role          *string
	VIPActive     *bool
	VIPUntil      *time.Time
	ClearVIPUntil bool
	AddDays       *int
	Tag           *string
	AssignedUser  *string
	Note          *string
}

// UserService is the admin view over accounts.
type UserService struct {
	userRepo  repository.UserRepository
	auditRepo repository.AuditRepository
	logger    *zap.Logger
}

func NewUserService(userRepo repository.UserRepository, auditRepo repository.AuditRepository, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{userRepo: userRepo, auditRepo: auditRepo, logger: logger}
}

// List pages through accounts with the admin filters.
func (s *UserService) List(ctx context.Context, filter repository.UserListFilter) ([]*model.User, int64, error) {
	users, err := s.userRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.userRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// Get returns one account by id.
func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// Update applies an admin edit. Unlike redemption, admins may set any role,
// including downgrades, and may force vip_active either way.
func (s *UserService) Update(ctx context.Context, actor uuid.UUID, id uuid.UUID, in UpdateUserInput) (*model.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changed := map[string]interface{}{}
	now := time.Now().UTC()

	if in.Role != nil {
		role := strings.ToLower(strings.TrimSpace(*in.Role))
		if !model.ValidRole(role) {
			return nil, ErrInvalidRole
		}
		user.Role = model.UserRole(role)
		changed["role"] = role
	}

	if in.VIPActive != nil {
		user.VIPActive = in.VIPActive
		changed["vip_active"] = *in.VIPActive
	}

	if in.ClearVIPUntil {
		user.VIPUntil = nil
		changed["vip_until"] = nil
	} else if in.VIPUntil != nil {
		until := in.VIPUntil.UTC()
		user.VIPUntil = &until
		changed["vip_until"] = until.Format(time.RFC3339)
	}

	if in.AddDays != nil && *in.AddDays != 0 {
		base := now
		if user.VIPUntil != nil && user.VIPUntil.After(now) {
			base = *user.VIPUntil
		}
		until := base.AddDate(0, 0, *in.AddDays)
		user.VIPUntil = &until
		changed["vip_until"] = until.Format(time.RFC3339)
	}

	if in.Tag != nil {
		user.Tag = emptyToNil(in.Tag)
		changed["tag"] = deref(in.Tag)
	}
	if in.AssignedUser != nil {
		user.AssignedUser = emptyToNil(in.AssignedUser)
		changed["assigned_user"] = deref(in.AssignedUser)
	}
	if in.Note != nil {
		user.Note = emptyToNil(in.Note)
		changed["note"] = deref(in.Note)
	}

	if len(changed) == 0 {
		return user, nil
	}

	user.UpdatedAt = now
	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if s.auditRepo != nil {
		actorID := actor
		targetID := id.String()
		_ = s.auditRepo.Create(ctx, &model.AuditLog{
			UserID:       &actorID,
			Action:       "user.update",
			ResourceType: strPtr("user"),
			ResourceID:   &targetID,
			NewValue:     changed,
			CreatedAt:    now,
		})
	}

	s.logger.Info("user updated by admin",
		zap.String("user_id", id.String()),
		zap.String("actor_id", actor.String()),
	)

	return user, nil
}

// NormalizeExpiredVIP flips lapsed vip accounts back to free and refreshes
// the paid-user gauge. Hygiene only; privileged checks never read the raw
// role column without going through Resolve.
func (s *UserService) NormalizeExpiredVIP(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	demoted, err := s.userRepo.DemoteExpiredVIP(ctx, now)
	if err != nil {
		return 0, err
	}

	if total, err := s.userRepo.CountActivePaid(ctx, now); err == nil {
		metrics.SetVipUsers(total)
	}

	if demoted > 0 {
		s.logger.Info("expired vip accounts normalized", zap.Int64("count", demoted))
	}
	return demoted, nil
}

func emptyToNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
