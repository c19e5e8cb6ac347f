package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"resale-hub/internal/metrics"
	"resale-hub/internal/model"
	"resale-hub/internal/repository"
	"resale-hub/pkg/logincode"
)

const (
	redemptionCodeLength = 16
	customCodeMinLength  = 4
	customCodeMaxLength  = 32
	keyCollisionRetries  = 5
)

var (
	ErrKeyNotFound     = errors.New("redemption key not found")
	ErrKeyExpired      = errors.New("redemption key expired")
	ErrKeyDepleted     = errors.New("redemption key depleted")
	ErrKeyCodeTaken    = errors.New("redemption key code already exists")
	ErrInvalidKeyCode  = errors.New("invalid redemption key code")
	ErrInvalidKeyType  = errors.New("invalid redemption key type")
	ErrInvalidDuration = errors.New("duration must be positive")
	ErrInvalidMaxUses  = errors.New("max_uses must not be negative")
)

// CreateKeyInput carries the admin-facing creation parameters. A zero MaxUses
// means unlimited; absent means single use.
type CreateKeyInput struct {
	Type         string
	DurationDays int
	CustomCode   string
	MaxUses      *int
	ExpiresAt    *time.Time
	Tag          *string
	AssignedUser *string
	Note         *string
}

// RedeemResult reports what a successful redemption did to the account.
type RedeemResult struct {
	User     *model.User
	KeyType  model.KeyType
	Extended int
	VIPUntil time.Time
}

// BatchDeleteResult aggregates a bulk delete: ids that were removed and ids
// that no longer existed.
type BatchDeleteResult struct {
	Deleted int
	Missing []uuid.UUID
}

// KeyService manages redemption keys and applies them to user accounts.
// Redemption runs in a single transaction with both the key row and the user
// row locked, so concurrent redeems of a bounded key serialize and never
// overshoot max_uses.
type KeyService struct {
	pool      *pgxpool.Pool
	keyRepo   repository.RedemptionKeyRepository
	userRepo  repository.UserRepository
	auditRepo repository.AuditRepository
	logger    *zap.Logger
}

func NewKeyService(
	pool *pgxpool.Pool,
	keyRepo repository.RedemptionKeyRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditRepository,
	logger *zap.Logger,
) *KeyService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &KeyService{
		pool:      pool,
		keyRepo:   keyRepo,
		userRepo:  userRepo,
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// Create mints a new redemption key. Custom codes are normalized the same way
// submitted codes are, so lookups are case-insensitive for free.
func (s *KeyService) Create(ctx context.Context, createdBy uuid.UUID, in CreateKeyInput) (*model.RedemptionKey, error) {
	keyType := model.KeyType(strings.ToLower(strings.TrimSpace(in.Type)))
	if !model.ValidKeyType(string(keyType)) {
		return nil, ErrInvalidKeyType
	}
	if in.DurationDays <= 0 {
		return nil, ErrInvalidDuration
	}

	maxUses := in.MaxUses
	if maxUses == nil {
		one := 1
		maxUses = &one
	} else if *maxUses == 0 {
		maxUses = nil
	} else if *maxUses < 0 {
		return nil, ErrInvalidMaxUses
	}

	custom := logincode.Normalize(in.CustomCode)
	if in.CustomCode != "" {
		if len(custom) < customCodeMinLength || len(custom) > customCodeMaxLength {
			return nil, ErrInvalidKeyCode
		}
	}

	for attempt := 0; attempt < keyCollisionRetries; attempt++ {
		code := custom
		if code == "" {
			generated, err := logincode.New(redemptionCodeLength)
			if err != nil {
				return nil, err
			}
			code = generated
		}

		now := time.Now().UTC()
		key := &model.RedemptionKey{
			ID:           uuid.New(),
			Code:         code,
			Type:         keyType,
			DurationDays: in.DurationDays,
			MaxUses:      maxUses,
			ExpiresAt:    in.ExpiresAt,
			Tag:          in.Tag,
			AssignedUser: in.AssignedUser,
			Note:         in.Note,
			CreatedBy:    createdBy,
			CreatedAt:    now,
		}

		if err := s.keyRepo.Create(ctx, key); err != nil {
			if isKeyCodeCollision(err) {
				if custom != "" {
					return nil, ErrKeyCodeTaken
				}
				continue
			}
			return nil, err
		}

		s.writeKeyAudit(ctx, createdBy, "key.create", key.ID)
		return key, nil
	}

	return nil, ErrCodeExhausted
}

// Redeem applies the key named by code to the user's account. Remaining VIP
// time is never lost: the new expiry is duration days past whichever is later,
// the current expiry or now. The role only ever moves up.
func (s *KeyService) Redeem(ctx context.Context, userID uuid.UUID, rawCode string) (*RedeemResult, error) {
	code := logincode.Normalize(rawCode)
	if code == "" {
		metrics.IncRedeem("not_found")
		return nil, ErrKeyNotFound
	}

	// Cheap lookup before opening a transaction. The endpoint is exposed to
	// every signed-in user, so unknown codes are the common case and should
	// not cost a row lock. The locked re-read below stays authoritative.
	if _, err := s.keyRepo.FindByCode(ctx, code); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.IncRedeem("not_found")
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin redeem tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	key, err := lockKeyByCode(ctx, tx, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			metrics.IncRedeem("not_found")
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	now := time.Now().UTC()
	if key.ExpiresAt != nil && !now.Before(*key.ExpiresAt) {
		metrics.IncRedeem("expired")
		return nil, ErrKeyExpired
	}
	if key.Depleted() {
		metrics.IncRedeem("depleted")
		return nil, ErrKeyDepleted
	}

	if _, err := tx.Exec(ctx,
		`UPDATE redemption_keys SET used_count = used_count + 1 WHERE id = $1`,
		key.ID,
	); err != nil {
		return nil, fmt.Errorf("consume redemption key: %w", err)
	}

	user, err := lockUserByID(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	base := now
	if user.VIPUntil != nil && user.VIPUntil.After(now) {
		base = *user.VIPUntil
	}
	newUntil := base.AddDate(0, 0, key.DurationDays)

	grantRole := model.UserRoleVIP
	if key.Type == model.KeyTypeGold {
		grantRole = model.UserRoleGold
	}
	newRole := user.Role
	if grantRole.Rank() > user.Role.Rank() {
		newRole = grantRole
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET role = $1, vip_until = $2, updated_at = $3 WHERE id = $4`,
		newRole, newUntil, now, userID,
	); err != nil {
		return nil, fmt.Errorf("apply redemption: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_logs (user_id, action, resource_type, resource_id, new_value, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, "key.redeem", "redemption_key", key.ID.String(),
		map[string]interface{}{
			"key_type":  string(key.Type),
			"days":      key.DurationDays,
			"vip_until": newUntil.Format(time.RFC3339),
			"role":      string(newRole),
		},
		now,
	); err != nil {
		return nil, fmt.Errorf("audit redemption: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit redeem tx: %w", err)
	}

	user.Role = newRole
	user.VIPUntil = &newUntil
	user.UpdatedAt = now

	metrics.IncRedeem("ok")
	s.logger.Info("redemption applied",
		zap.String("user_id", userID.String()),
		zap.String("key_type", string(key.Type)),
		zap.Int("days", key.DurationDays),
	)

	return &RedeemResult{
		User:     user,
		KeyType:  key.Type,
		Extended: key.DurationDays,
		VIPUntil: newUntil,
	}, nil
}

// List pages through keys with the admin filters.
func (s *KeyService) List(ctx context.Context, filter repository.KeyListFilter) ([]*model.RedemptionKey, int64, error) {
	keys, err := s.keyRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.keyRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return keys, total, nil
}

// Get returns a single key by id.
func (s *KeyService) Get(ctx context.Context, id uuid.UUID) (*model.RedemptionKey, error) {
	key, err := s.keyRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return key, nil
}

// UpdateMeta rewrites the bookkeeping fields. Code, type, duration and usage
// counters are immutable after creation.
func (s *KeyService) UpdateMeta(ctx context.Context, actor uuid.UUID, id uuid.UUID, tag, assignedUser, note *string) (*model.RedemptionKey, error) {
	key, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if tag != nil {
		key.Tag = emptyToNil(tag)
	}
	if assignedUser != nil {
		key.AssignedUser = emptyToNil(assignedUser)
	}
	if note != nil {
		key.Note = emptyToNil(note)
	}

	if err := s.keyRepo.UpdateMeta(ctx, id, key.Tag, key.AssignedUser, key.Note); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	s.writeKeyAudit(ctx, actor, "key.update", id)
	return key, nil
}

// Delete removes a single key.
func (s *KeyService) Delete(ctx context.Context, actor uuid.UUID, id uuid.UUID) error {
	if err := s.keyRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrKeyNotFound
		}
		return err
	}

	s.writeKeyAudit(ctx, actor, "key.delete", id)
	return nil
}

// BatchDelete removes many keys in one call and reports per-id outcomes in
// aggregate. Missing ids are not an error; the caller sees them in the result.
func (s *KeyService) BatchDelete(ctx context.Context, actor uuid.UUID, ids []uuid.UUID) (*BatchDeleteResult, error) {
	result := &BatchDeleteResult{}
	for _, id := range ids {
		err := s.keyRepo.Delete(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				result.Missing = append(result.Missing, id)
				continue
			}
			return nil, err
		}
		result.Deleted++
	}

	if result.Deleted > 0 {
		s.writeKeyAudit(ctx, actor, "key.batch_delete", uuid.Nil)
	}
	return result, nil
}

func (s *KeyService) writeKeyAudit(ctx context.Context, actor uuid.UUID, action string, keyID uuid.UUID) {
	if s.auditRepo == nil {
		return
	}

	var resourceID *string
	if keyID != uuid.Nil {
		id := keyID.String()
		resourceID = &id
	}

	actorID := actor
	_ = s.auditRepo.Create(ctx, &model.AuditLog{
		UserID:       &actorID,
		Action:       action,
		ResourceType: strPtr("redemption_key"),
		ResourceID:   resourceID,
		CreatedAt:    time.Now().UTC(),
	})
}

func lockKeyByCode(ctx context.Context, tx pgx.Tx, code string) (*model.RedemptionKey, error) {
	row := tx.QueryRow(ctx,
		`SELECT id, code, type, duration_days, max_uses, used_count, expires_at,
		        tag, assigned_user, note, created_by, created_at
		 FROM redemption_keys WHERE code = $1 FOR UPDATE`,
		code,
	)

	key := &model.RedemptionKey{}
	if err := row.Scan(
		&key.ID, &key.Code, &key.Type, &key.DurationDays, &key.MaxUses,
		&key.UsedCount, &key.ExpiresAt, &key.Tag, &key.AssignedUser,
		&key.Note, &key.CreatedBy, &key.CreatedAt,
	); err != nil {
		return nil, err
	}
	return key, nil
}

func lockUserByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.User, error) {
	row := tx.QueryRow(ctx,
		`SELECT id, role, vip_until, vip_active, telegram_id, telegram_username,
		        tag, assigned_user, note, created_at, updated_at
		 FROM users WHERE id = $1 FOR UPDATE`,
		id,
	)

	user := &model.User{}
	if err := row.Scan(
		&user.ID, &user.Role, &user.VIPUntil, &user.VIPActive, &user.TelegramID,
		&user.TelegramUsername, &user.Tag, &user.AssignedUser, &user.Note,
		&user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return user, nil
}

func isKeyCodeCollision(err error) bool {
	return isUniqueViolationOn(err, "redemption_keys_code_key")
}
