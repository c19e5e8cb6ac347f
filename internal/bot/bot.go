package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"resale-hub/internal/metrics"
)

const updateHandleTimeout = 30 * time.Second

const (
	msgStart      = "Welcome! Send /code to get a login code for the web panel."
	msgWait       = "Easy there. Try again in a second."
	msgInProgress = "Your code is already on the way."
	msgFailure    = "Could not get a code right now. Please try again in a minute."
)

// Bot runs the long-polling loop and hands out login codes.
type Bot struct {
	api     *tgbotapi.BotAPI
	client  *APIClient
	guard   *AntiFloodGuard
	limiter *rate.Limiter
	logger  *zap.Logger
}

func New(api *tgbotapi.BotAPI, client *APIClient, guard *AntiFloodGuard, limiter *rate.Limiter, logger *zap.Logger) *Bot {
	if guard == nil {
		guard = NewAntiFloodGuard(defaultCooldown)
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(25), 50)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Bot{
		api:     api,
		client:  client,
		guard:   guard,
		limiter: limiter,
		logger:  logger,
	}
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("bot authorized", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bot stopping")
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	updateCtx, cancel := context.WithTimeout(ctx, updateHandleTimeout)
	defer cancel()

	defer func() {
		if recovered := recover(); recovered != nil {
			metrics.IncBotUpdate("panic")
			b.logger.Error("update handler panic recovered",
				zap.Int64("telegram_id", update.Message.From.ID),
				zap.Any("panic", recovered),
			)
		}
	}()

	if !b.limiter.Allow() {
		metrics.IncBotUpdate("throttled")
		return
	}

	b.handleMessage(updateCtx, update.Message)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	command := msg.Command()
	if command == "" {
		command = strings.ToLower(strings.TrimSpace(msg.Text))
		command = strings.TrimPrefix(command, "/")
	}

	switch command {
	case "start":
		metrics.IncBotUpdate("start")
		b.reply(msg.Chat.ID, msgStart)
	case "code", "login":
		b.handleCodeRequest(ctx, msg)
	default:
		metrics.IncBotUpdate("ignored")
	}
}

func (b *Bot) handleCodeRequest(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID

	switch b.guard.Acquire(userID) {
	case Wait:
		metrics.IncBotUpdate("cooldown")
		b.reply(msg.Chat.ID, msgWait)
		return
	case InFlight:
		metrics.IncBotUpdate("in_flight")
		b.reply(msg.Chat.ID, msgInProgress)
		return
	}
	defer b.guard.Release(userID)

	issued, err := b.client.RequestCode(ctx, userID)
	if err != nil {
		metrics.IncBotUpdate("backend_error")
		b.logger.Warn("code request failed",
			zap.Int64("telegram_id", userID),
			zap.Error(err),
		)
		b.reply(msg.Chat.ID, msgFailure)
		return
	}

	metrics.IncBotUpdate("code_sent")
	remaining := time.Until(issued.ExpiresAt).Round(time.Second)
	if remaining < 0 {
		remaining = 0
	}
	b.reply(msg.Chat.ID, fmt.Sprintf(
		"Your login code: %s\nValid for %s.",
		issued.Code, remaining,
	))
}

func (b *Bot) reply(chatID int64, text string) {
	out := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(out); err != nil {
		b.logger.Warn("send message failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
