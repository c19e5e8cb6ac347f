package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	specCodeReap     = "0 0 * * * *"
	specVIPNormalize = "0 0 0 * * *"
)

type CodeTask interface {
	ReapExpired()
}

type VIPTask interface {
	NormalizeExpired()
}

type Deps struct {
	CodeJob CodeTask
	VIPJob  VIPTask
}

func NewScheduler(deps Deps, logger *zap.Logger) *cron.Cron {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC))

	if deps.CodeJob != nil {
		addFunc(c, specCodeReap, "code.reap", logger, deps.CodeJob.ReapExpired)
	}
	if deps.VIPJob != nil {
		addFunc(c, specVIPNormalize, "vip.normalize", logger, deps.VIPJob.NormalizeExpired)
	}

	return c
}

func addFunc(c *cron.Cron, spec string, name string, logger *zap.Logger, fn func()) {
	if c == nil || fn == nil {
		return
	}

	if _, err := c.AddFunc(spec, func() {
		defer recoverJobPanic(name, logger)
		start := time.Now()
		fn()
		logger.Debug("scheduler job finished", zap.String("job", name), zap.Duration("cost", time.Since(start)))
	}); err != nil {
		logger.Error("register scheduler job failed",
			zap.String("job", name),
			zap.String("spec", spec),
			zap.Error(err),
		)
	}
}

func recoverJobPanic(jobName string, logger *zap.Logger) {
	if logger == nil {
		return
	}

	if recovered := recover(); recovered != nil {
		logger.Error("scheduler job panic recovered",
			zap.String("job", jobName),
			zap.Any("panic", recovered),
		)
	}
}
