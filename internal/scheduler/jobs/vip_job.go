package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"resale-hub/internal/service"
)

type VIPJob struct {
	userService *service.UserService
	logger      *zap.Logger
}

func NewVIPJob(userService *service.UserService, logger *zap.Logger) *VIPJob {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &VIPJob{
		userService: userService,
		logger:      logger,
	}
}

func (j *VIPJob) NormalizeExpired() {
	if j == nil || j.userService == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := j.userService.NormalizeExpiredVIP(ctx); err != nil {
		j.logger.Warn("vip normalize failed", zap.Error(err))
	}
}
