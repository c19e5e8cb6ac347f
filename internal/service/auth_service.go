package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"resale-hub/internal/metrics"
	"resale-hub/internal/model"
	"resale-hub/internal/repository"
	jwtutil "resale-hub/pkg/jwt"
	"resale-hub/pkg/logincode"
)

const (
	loginCodeTTL           = 5 * time.Minute
	defaultSessionTokenTTL = 30 * 24 * time.Hour
	codeCollisionRetries   = 5
)

var (
	ErrCodeNotFound  = errors.New("login code not found")
	ErrCodeExpired   = errors.New("login code expired")
	ErrCodeExhausted = errors.New("login code generation exhausted")
	ErrUserNotFound  = errors.New("user not found")
	ErrInvalidUserID = errors.New("invalid user id")
	ErrInvalidTGID   = errors.New("invalid telegram id")
	ErrNoSessionKey  = errors.New("session private key is nil")
)

// IssuedCode is what the bot relays back to the user.
type IssuedCode struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	Reused    bool      `json:"reused"`
}

// AuthService issues login codes and exchanges them for session tokens.
//
// Verification is code-scoped, not user-scoped: the submitter proves identity
// by knowing the code. A code stays valid for its whole five-minute window;
// verify records use but does not consume, matching the bot's "show the same
// code again" behaviour.
type AuthService struct {
	userRepo   repository.UserRepository
	codeRepo   repository.LoginCodeRepository
	auditRepo  repository.AuditRepository
	privateKey *rsa.PrivateKey
	sessionTTL time.Duration
	logger     *zap.Logger
}

func NewAuthService(
	userRepo repository.UserRepository,
	codeRepo repository.LoginCodeRepository,
	auditRepo repository.AuditRepository,
	privateKey *rsa.PrivateKey,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuthService{
		userRepo:   userRepo,
		codeRepo:   codeRepo,
		auditRepo:  auditRepo,
		privateKey: privateKey,
		sessionTTL: defaultSessionTokenTTL,
		logger:     logger,
	}
}

// RequestCode returns the live code for telegramID, creating one only when
// none exists. Never issues two simultaneously valid codes for one user: the
// store's conditional upsert refuses to overwrite an unexpired row, so the
// losing side of any race reads back the winner's code.
func (s *AuthService) RequestCode(ctx context.Context, telegramID int64) (*IssuedCode, error) {
	if telegramID == 0 {
		return nil, ErrInvalidTGID
	}

	for attempt := 0; attempt < codeCollisionRetries; attempt++ {
		code, err := logincode.NewLoginCode()
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		rec := &model.LoginCode{
			TelegramID: telegramID,
			Code:       code,
			IssuedAt:   now,
			ExpiresAt:  now.Add(loginCodeTTL),
		}

		written, err := s.codeRepo.Refresh(ctx, rec)
		if err != nil {
			// Two different users can collide on the same random code;
			// the global unique index turns that into a retry.
			if isCodeCollision(err) {
				continue
			}
			return nil, err
		}

		if written {
			metrics.IncLoginCodeIssued(false)
			return &IssuedCode{Code: rec.Code, ExpiresAt: rec.ExpiresAt, Reused: false}, nil
		}

		existing, err := s.codeRepo.FindByTelegramID(ctx, telegramID)
		if err != nil {
			return nil, err
		}
		if existing.Live(time.Now().UTC()) {
			metrics.IncLoginCodeIssued(true)
			return &IssuedCode{Code: existing.Code, ExpiresAt: existing.ExpiresAt, Reused: true}, nil
		}
		// Expired between the upsert and the read; try again.
	}

	return nil, ErrCodeExhausted
}

// Verify exchanges a submitted code for a session token. The code is matched
// globally by value; user lookup or creation is driven by the telegram id the
// code was bound to at issuance.
func (s *AuthService) Verify(ctx context.Context, rawCode, note string) (string, *model.User, error) {
	if s.privateKey == nil {
		return "", nil, ErrNoSessionKey
	}

	code := logincode.Normalize(rawCode)
	if code == "" {
		metrics.IncVerify("bad_code")
		return "", nil, ErrCodeNotFound
	}

	rec, err := s.codeRepo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.IncVerify("bad_code")
			return "", nil, ErrCodeNotFound
		}
		return "", nil, err
	}

	now := time.Now().UTC()
	if !rec.Live(now) {
		metrics.IncVerify("expired")
		return "", nil, ErrCodeExpired
	}

	user, err := s.findOrCreateUser(ctx, rec.TelegramID, note)
	if err != nil {
		return "", nil, err
	}

	if err := s.codeRepo.TouchLastUsed(ctx, rec.TelegramID, now); err != nil {
		s.logger.Warn("stamp login code use failed",
			zap.Int64("telegram_id", rec.TelegramID),
			zap.Error(err),
		)
	}

	claims := jwtutil.NewClaims(user.ID.String(), string(user.Role), s.sessionTTL)
	token, err := jwtutil.GenerateSessionToken(claims, s.privateKey)
	if err != nil {
		return "", nil, err
	}

	s.writeAudit(ctx, &user.ID, "user.login.code")
	metrics.IncVerify("ok")

	return token, user, nil
}

// Me returns the fresh user record for a session. Callers derive the tier
// from the snapshot via Resolve; nothing entitlement-shaped is cached.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	uid, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return nil, ErrInvalidUserID
	}

	user, err := s.userRepo.FindByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// ReapExpiredCodes drops codes expired for longer than a day. Validity is
// always derived from expires_at at read time; this only keeps the table small.
func (s *AuthService) ReapExpiredCodes(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	removed, err := s.codeRepo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.AddExpiredCodesReaped(removed)
	return removed, nil
}

func (s *AuthService) findOrCreateUser(ctx context.Context, telegramID int64, note string) (*model.User, error) {
	user, err := s.userRepo.FindByTelegramID(ctx, telegramID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	fresh := &model.User{
		ID:         uuid.New(),
		Role:       model.UserRoleFree,
		TelegramID: telegramID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		fresh.Note = &trimmed
	}

	if err := s.userRepo.Create(ctx, fresh); err != nil {
		// Lost a create race against a concurrent verify for the same user.
		if existing, findErr := s.userRepo.FindByTelegramID(ctx, telegramID); findErr == nil {
			return existing, nil
		}
		return nil, err
	}

	s.writeAudit(ctx, &fresh.ID, "user.create.code")
	return fresh, nil
}

func (s *AuthService) writeAudit(ctx context.Context, userID *uuid.UUID, action string) {
	if s.auditRepo == nil {
		return
	}

	_ = s.auditRepo.Create(ctx, &model.AuditLog{
		UserID:       userID,
		Action:       action,
		ResourceType: strPtr("user"),
		ResourceID:   uuidToStringPtr(userID),
		CreatedAt:    time.Now().UTC(),
	})
}
