package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"resale-hub/internal/api/middleware"
	"resale-hub/internal/api/response"
	inputsanitize "resale-hub/internal/api/sanitize"
	"resale-hub/internal/model"
	"resale-hub/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

type requestCodeRequest struct {
	TelegramID int64 `json:"telegram_id" binding:"required"`
}

type verifyRequest struct {
	Code string `json:"code" binding:"required"`
	Note string `json:"note"`
}

// userView is the account snapshot handed to clients. Tier flags are derived
// on the way out so stale role columns can never leak privilege.
type userView struct {
	ID               string     `json:"id"`
	TelegramID       int64      `json:"telegram_id"`
	TelegramUsername *string    `json:"telegram_username,omitempty"`
	Role             string     `json:"role"`
	VIPUntil         *time.Time `json:"vip_until,omitempty"`
	VIPActive        *bool      `json:"vip_active,omitempty"`
	IsVIP            bool       `json:"is_vip"`
	IsGold           bool       `json:"is_gold"`
	IsAdmin          bool       `json:"is_admin"`
	CreatedAt        time.Time  `json:"created_at"`
}

func newUserView(user *model.User) userView {
	ent := service.Resolve(user, time.Now().UTC())
	return userView{
		ID:               user.ID.String(),
		TelegramID:       user.TelegramID,
		TelegramUsername: user.TelegramUsername,
		Role:             string(ent.Role),
		VIPUntil:         user.VIPUntil,
		VIPActive:        user.VIPActive,
		IsVIP:            ent.IsVip,
		IsGold:           ent.IsGold,
		IsAdmin:          ent.IsAdmin,
		CreatedAt:        user.CreatedAt,
	}
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func RegisterAuthRoutes(router *gin.Engine, authService *service.AuthService, botAPIKey string) {
	if authService == nil {
		return
	}

	handler := NewAuthHandler(authService)

	router.POST(
		"/auth/telegram/request-code",
		middleware.BotKeyAuth(botAPIKey),
		middleware.RateLimitByJSONField("telegram_id", 10, time.Minute),
		handler.RequestCode,
	)
	router.POST(
		"/auth/tg/verify",
		middleware.RateLimit(10, time.Minute),
		handler.Verify,
	)
	router.GET("/me", middleware.SessionAuth(), handler.Me)
}

func (h *AuthHandler) RequestCode(c *gin.Context) {
	var req requestCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailStatus(c, http.StatusBadRequest, "telegram_id is required")
		return
	}

	issued, err := h.authService.RequestCode(c.Request.Context(), req.TelegramID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTGID):
			response.FailStatus(c, http.StatusBadRequest, "invalid telegram_id")
		case errors.Is(err, service.ErrCodeExhausted):
			response.Fail(c, http.StatusInternalServerError, response.KindNoCode, "could not allocate a login code")
		default:
			response.FailStatus(c, http.StatusInternalServerError, "internal error")
		}
		return
	}

	response.Success(c, issued)
}

func (h *AuthHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.KindBadCode, "code is required")
		return
	}

	note := inputsanitize.Note(req.Note)
	token, user, err := h.authService.Verify(c.Request.Context(), req.Code, note)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCodeNotFound):
			response.Fail(c, http.StatusUnauthorized, response.KindBadCode, "unknown login code")
		case errors.Is(err, service.ErrCodeExpired):
			response.Fail(c, http.StatusUnauthorized, response.KindCodeExpired, "login code expired")
		default:
			response.FailStatus(c, http.StatusInternalServerError, "internal error")
		}
		return
	}

	response.Success(c, gin.H{
		"token": token,
		"user":  newUserView(user),
	})
}

func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.KindNoToken, "missing session token")
		return
	}

	user, err := h.authService.Me(c.Request.Context(), claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidUserID), errors.Is(err, service.ErrUserNotFound):
			response.Fail(c, http.StatusUnauthorized, response.KindNoToken, "unknown session")
		default:
			response.FailStatus(c, http.StatusInternalServerError, "internal error")
		}
		return
	}

	response.Success(c, newUserView(user))
}
