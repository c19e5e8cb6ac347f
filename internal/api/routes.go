package api

import (
	"github.com/gin-gonic/gin"

	v1 "resale-hub/internal/api/v1"
	"resale-hub/internal/service"
)

func RegisterRoutes(
	router *gin.Engine,
	authService *service.AuthService,
	keyService *service.KeyService,
	userService *service.UserService,
	botAPIKey string,
) {
	v1.RegisterAuthRoutes(router, authService, botAPIKey)
	v1.RegisterKeyRoutes(router, keyService)
	v1.RegisterUserRoutes(router, userService)
}
