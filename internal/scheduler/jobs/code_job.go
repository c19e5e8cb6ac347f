package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"resale-hub/internal/service"
)

type CodeJob struct {
	authService *service.AuthService
	logger      *zap.Logger
}

func NewCodeJob(authService *service.AuthService, logger *zap.Logger) *CodeJob {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CodeJob{
		authService: authService,
		logger:      logger,
	}
}

func (j *CodeJob) ReapExpired() {
	if j == nil || j.authService == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	removed, err := j.authService.ReapExpiredCodes(ctx)
	if err != nil {
		j.logger.Warn("login code reap failed", zap.Error(err))
		return
	}
	if removed > 0 {
		j.logger.Info("expired login codes reaped", zap.Int64("count", removed))
	}
}
