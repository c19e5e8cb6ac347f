package v1

import (
	"encoding/json"
	"errors"
	"net/http"
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

type UserHandler struct {
	userService *service.UserService
}

type updateUserRequest struct {
	Role      *string `json:"role"`
	VIPActive *bool   `json:"vip_active"`
	// Raw so an explicit null (clear the expiry) is distinguishable from an
	// absent field.
	VIPUntil     json.RawMessage `json:"vip_until"`
	AddDays      *int            `json:"add_days"`
	Tag          *string         `json:"tag"`
	AssignedUser *string         `json:"assigned_user"`
	Note         *string         `json:"note"`
}

func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

func RegisterUserRoutes(router *gin.Engine, userService *service.UserService) {
	if userService == nil {
		return
	}

	handler := NewUserHandler(userService)

	admin := router.Group("/admin/users")
	admin.Use(middleware.SessionAuth(), middleware.RequireAdmin())
	admin.GET("", handler.List)
	admin.GET("/:id", handler.Get)
	admin.PATCH("/:id", handler.Update)
}

func (h *UserHandler) List(c *gin.Context) {
	filter := repository.UserListFilter{
		Pagination: paginationFromQuery(c),
	}
	if raw := strings.ToLower(strings.TrimSpace(c.Query("role"))); raw != "" {
		if !model.ValidRole(raw) {
			response.FailStatus(c, http.StatusBadRequest, "invalid role")
			return
		}
		role := model.UserRole(raw)
		filter.Role = &role
	}
	if keyword := inputsanitize.Text(c.Query("keyword")); keyword != "" {
		filter.Keyword = &keyword
	}

	users, total, err := h.userService.List(c.Request.Context(), filter)
	if err != nil {
		response.FailStatus(c, http.StatusInternalServerError, "internal error")
		return
	}

	views := make([]userView, 0, len(users))
	for _, user := range users {
		views = append(views, newUserView(user))
	}
	response.Paginated(c, views, filter.Pagination.Limit, filter.Pagination.Offset, total)
}

func (h *UserHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.FailStatus(c, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := h.userService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.FailStatus(c, http.StatusNotFound, "user not found")
			return
		}
		response.FailStatus(c, http.StatusInternalServerError, "internal error")
		return
	}

	response.Success(c, newUserView(user))
}

func (h *UserHandler) Update(c *gin.Context) {
	claims, _ := middleware.GetClaims(c)
	actorID, err := uuid.Parse(claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.KindNoToken, "unknown session")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.FailStatus(c, http.StatusBadRequest, "invalid user id")
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailStatus(c, http.StatusBadRequest, "invalid request body")
		return
	}

	input := service.UpdateUserInput{
		Role:         req.Role,
		VIPActive:    req.VIPActive,
		AddDays:      req.AddDays,
		Tag:          metaPtr(req.Tag),
		AssignedUser: metaPtr(req.AssignedUser),
		Note:         metaPtr(req.Note),
	}
	if len(req.VIPUntil) > 0 {
		if string(req.VIPUntil) == "null" {
			input.ClearVIPUntil = true
		} else {
			var raw string
			if err := json.Unmarshal(req.VIPUntil, &raw); err != nil {
				response.FailStatus(c, http.StatusBadRequest, "invalid vip_until")
				return
			}
			until, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				response.FailStatus(c, http.StatusBadRequest, "invalid vip_until")
				return
			}
			input.VIPUntil = &until
		}
	}

	user, err := h.userService.Update(c.Request.Context(), actorID, id, input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			response.FailStatus(c, http.StatusNotFound, "user not found")
		case errors.Is(err, service.ErrInvalidRole):
			response.FailStatus(c, http.StatusBadRequest, "invalid role")
		default:
			response.FailStatus(c, http.StatusInternalServerError, "internal error")
		}
		return
	}

	response.Success(c, newUserView(user))
}
