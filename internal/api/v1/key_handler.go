package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"resale-hub/internal/api/middleware"
	"resale-hub/internal/api/response"
	inputsanitize "resale-hub/internal/api/sanitize"
	"resale-hub/internal/model"
	"resale-hub/internal/repository"
	"resale-hub/internal/service"
)

type KeyHandler struct {
	keyService *service.KeyService
}

type redeemRequest struct {
	Code string `json:"code" binding:"required"`
}

type createKeyRequest struct {
	Type         string  `json:"type" binding:"required"`
	DurationDays int     `json:"duration_days" binding:"required"`
	CustomCode   string  `json:"custom_code"`
	MaxUses      *int    `json:"max_uses"`
	ExpiresAt    *string `json:"expires_at"`
	Tag          *string `json:"tag"`
	AssignedUser *string `json:"assigned_user"`
	Note         *string `json:"note"`
}

type updateKeyMetaRequest struct {
	Tag          *string `json:"tag"`
	AssignedUser *string `json:"assigned_user"`
	Note         *string `json:"note"`
}

type batchDeleteKeysRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

type keyView struct {
	ID           string     `json:"id"`
	Code         string     `json:"code"`
	Type         string     `json:"type"`
	DurationDays int        `json:"duration_days"`
	MaxUses      *int       `json:"max_uses"`
	UsedCount    int        `json:"used_count"`
	Depleted     bool       `json:"depleted"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Tag          *string    `json:"tag,omitempty"`
	AssignedUser *string    `json:"assigned_user,omitempty"`
	Note         *string    `json:"note,omitempty"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
}

func newKeyView(key *model.RedemptionKey) keyView {
	return keyView{
		ID:           key.ID.String(),
		Code:         key.Code,
		Type:         string(key.Type),
		DurationDays: key.DurationDays,
		MaxUses:      key.MaxUses,
		UsedCount:    key.UsedCount,
		Depleted:     key.Depleted(),
		ExpiresAt:    key.ExpiresAt,
		Tag:          key.Tag,
		AssignedUser: key.AssignedUser,
		Note:         key.Note,
		CreatedBy:    key.CreatedBy.String(),
		CreatedAt:    key.CreatedAt,
	}
}

func NewKeyHandler(keyService *service.KeyService) *KeyHandler {
	return &KeyHandler{keyService: keyService}
}

func RegisterKeyRoutes(router *gin.Engine, keyService *service.KeyService) {
	if keyService == nil {
		return
	}

	handler := NewKeyHandler(keyService)

	router.POST(
		"/redeem",
		middleware.SessionAuth(),
		middleware.RateLimitByUser(10, time.Minute),
		handler.Redeem,
	)

	admin := router.Group("/admin/keys")
	admin.Use(middleware.SessionAuth(), middleware.RequireAdmin())
	admin.GET("", handler.List)
	admin.POST("", handler.Create)
	admin.GET("/:id", handler.Get)
	admin.PATCH("/:id/meta", handler.UpdateMeta)
	admin.DELETE("/:id", handler.Delete)
	admin.DELETE("", handler.BatchDelete)
}

func (h *KeyHandler) Redeem(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.KindNoToken, "missing session token")
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.KindNoToken, "unknown session")
		return
	}

	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.KindBadCode, "code is required")
		return
	}

	result, err := h.keyService.Redeem(c.Request.Context(), userID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrKeyNotFound):
			response.Fail(c, http.StatusNotFound, response.KindBadCode, "unknown redemption key")
		case errors.Is(err, service.ErrKeyExpired):
			response.Fail(c, http.StatusGone, response.KindCodeExpired, "redemption key expired")
		case errors.Is(err, service.ErrKeyDepleted):
			response.Fail(c, http.StatusConflict, response.KindCodeLimit, "redemption key fully used")
		case errors.Is(err, service.ErrUserNotFound):
			response.Fail(c, http.StatusUnauthorized, response.KindNoToken, "unknown session")
		default:
			response.FailStatus(c, http.StatusInternalServerError, "internal error")
		}
		return
	}

	response.Success(c, gin.H{
		"ok":   true,
		"user": newUserView(result.User),
	})
}

func (h *KeyHandler) List(c *gin.Context) {
	filter := repository.KeyListFilter{
		Pagination: paginationFromQuery(c),
	}
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		if !model.ValidKeyType(strings.ToLower(raw)) {
			response.FailStatus(c, http.StatusBadRequest, "invalid type")
			return
		}
		keyType := model.KeyType(strings.ToLower(raw))
		filter.Type = &keyType
	}
	if raw := strings.TrimSpace(c.Query("depleted")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			response.FailStatus(c, http.StatusBadRequest, "invalid depleted")
			return
		}
		filter.Depleted = &value
	}
	if keyword := inputsanitize.Text(c.Query("keyword")); keyword != "" {
		filter.Keyword = &keyword
	}

	keys, total, err := h.keyService.List(c.Request.Context(), filter)
	if err != nil {
		response.FailStatus(c, http.StatusInternalServerError, "internal error")
		return
	}

	views := make([]keyView, 0, len(keys))
	for _, key := range keys {
		views = append(views, newKeyView(key))
	}
	response.Paginated(c, views, filter.Pagination.Limit, filter.Pagination.Offset, total)
}

func (h *KeyHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.FailStatus(c, http.StatusBadRequest, "invalid key id")
		return
	}

	key, err := h.keyService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			response.FailStatus(c, http.StatusNotFound, "key not found")
			return
		}
		response.FailStatus(c, http.StatusInternalServerError, "internal error")
		return
	}

	response.Success(c, newKeyView(key))
}

func (h *KeyHandler) Create(c *gin.Context) {
	claims, _ := middleware.GetClaims(c)
	actorID, err := uuid.Parse(claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.KindNoToken, "unknown session")
		return
	}

	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailStatus(c, http.StatusBadRequest, "type and duration_days are required")
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil && strings.TrimSpace(*req.ExpiresAt) != "" {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.ExpiresAt))
		if err != nil {
			response.FailStatus(c, http.StatusBadRequest, "expires_at must be RFC3339")
			return
		}
		utc := parsed.UTC()
		expiresAt = &utc
	}

	key, err := h.keyService.Create(c.Request.Context(), actorID, service.CreateKeyInput{
		Type:         req.Type,
		DurationDays: req.DurationDays,
		CustomCode:   req.CustomCode,
		MaxUses:      req.MaxUses,
		ExpiresAt:    expiresAt,
		Tag:          inputsanitize.NotePtr(req.Tag),
		AssignedUser: inputsanitize.NotePtr(req.AssignedUser),
		Note:         inputsanitize.NotePtr(req.Note),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidKeyType):
			response.FailStatus(c, http.StatusBadRequest, "type must be vip or gold")
		case errors.Is(err, service.ErrInvalidDuration):
			response.FailStatus(c, http.StatusBadRequest, "duration_days must be positive")
		case errors.Is(err, service.ErrInvalidMaxUses):
			response.FailStatus(c, http.StatusBadRequest, "max_uses must not be negative")
		case errors.Is(err, service.ErrInvalidKeyCode):
			response.FailStatus(c, http.StatusBadRequest, "custom_code must be 4 to 32 characters")
		case errors.Is(err, service.ErrKeyCodeTaken):
			response.FailStatus(c, http.StatusConflict, "custom_code already exists")
		default:
			response.FailStatus(c, http.StatusInternalServerError, "internal error")
		}
		return
	}

	response.Created(c, newKeyView(key))
}

func (h *KeyHandler) UpdateMeta(c *gin.Context) {
	claims, _ := middleware.GetClaims(c)
	actorID, err := uuid.Parse(claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.KindNoToken, "unknown session")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.FailStatus(c, http.StatusBadRequest, "invalid key id")
		return
	}

	var req updateKeyMetaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailStatus(c, http.StatusBadRequest, "invalid request body")
		return
	}

	key, err := h.keyService.UpdateMeta(
		c.Request.Context(),
		actorID,
		id,
		metaPtr(req.Tag),
		metaPtr(req.AssignedUser),
		metaPtr(req.Note),
	)
	if err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			response.FailStatus(c, http.StatusNotFound, "key not found")
			return
		}
		response.FailStatus(c, http.StatusInternalServerError, "internal error")
		return
	}

	response.Success(c, newKeyView(key))
}

func (h *KeyHandler) Delete(c *gin.Context) {
	claims, _ := middleware.GetClaims(c)
	actorID, err := uuid.Parse(claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.KindNoToken, "unknown session")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.FailStatus(c, http.StatusBadRequest, "invalid key id")
		return
	}

	if err := h.keyService.Delete(c.Request.Context(), actorID, id); err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			response.FailStatus(c, http.StatusNotFound, "key not found")
			return
		}
		response.FailStatus(c, http.StatusInternalServerError, "internal error")
		return
	}

	response.Success(c, gin.H{"ok": true})
}

func (h *KeyHandler) BatchDelete(c *gin.Context) {
	claims, _ := middleware.GetClaims(c)
	actorID, err := uuid.Parse(claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.KindNoToken, "unknown session")
		return
	}

	var req batchDeleteKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		response.FailStatus(c, http.StatusBadRequest, "ids is required")
		return
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	invalid := 0
	for _, raw := range req.IDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			invalid++
			continue
		}
		ids = append(ids, id)
	}

	result, err := h.keyService.BatchDelete(c.Request.Context(), actorID, ids)
	if err != nil {
		response.FailStatus(c, http.StatusInternalServerError, "internal error")
		return
	}

	response.Success(c, gin.H{
		"deleted": result.Deleted,
		"missing": len(result.Missing) + invalid,
	})
}

// metaPtr sanitizes admin free text while preserving pointer presence, so an
// explicit empty string still means "clear this field" downstream.
func metaPtr(p *string) *string {
	if p == nil {
		return nil
	}
	value := inputsanitize.Note(*p)
	return &value
}

func paginationFromQuery(c *gin.Context) repository.Pagination {
	limit := parseInt32OrDefault(c.Query("limit"), 20)
	offset := parseInt32OrDefault(c.Query("offset"), 0)
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return repository.Pagination{Limit: limit, Offset: offset}
}

func parseInt32OrDefault(raw string, fallback int32) int32 {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback
	}
	value, err := strconv.ParseInt(trimmed, 10, 32)
	if err != nil {
		return fallback
	}
	return int32(value)
}
