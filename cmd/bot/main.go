package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"resale-hub/internal/bot"
)

type Config struct {
	App struct {
		Env string `mapstructure:"env"`
	} `mapstructure:"app"`
	Log struct {
		Level    string `mapstructure:"level"`
		Encoding string `mapstructure:"encoding"`
	} `mapstructure:"log"`
	Bot struct {
		Token        string  `mapstructure:"token"`
		TokenFile    string  `mapstructure:"token_file"`
		APIBaseURL   string  `mapstructure:"api_base_url"`
		APIKey       string  `mapstructure:"api_key"`
		APIKeyFile   string  `mapstructure:"api_key_file"`
		GlobalRPS    float64 `mapstructure:"global_rps"`
		GlobalBurst  int     `mapstructure:"global_burst"`
		CooldownMS   int     `mapstructure:"cooldown_ms"`
		DebugUpdates bool    `mapstructure:"debug_updates"`
	} `mapstructure:"bot"`
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer logger.Sync() //nolint:errcheck

	api, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		logger.Fatal("telegram authorization failed", zap.Error(err))
	}
	api.Debug = cfg.Bot.DebugUpdates

	client := bot.NewAPIClient(cfg.Bot.APIBaseURL, cfg.Bot.APIKey)
	guard := bot.NewAntiFloodGuard(cooldownFromConfig(cfg))
	limiter := rate.NewLimiter(rate.Limit(cfg.Bot.GlobalRPS), cfg.Bot.GlobalBurst)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bot.New(api, client, guard, limiter, logger).Start(ctx)
}

func loadConfig() (Config, error) {
	v := viper.New()
	v.SetConfigName("bot")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RESALEHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.env", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.token_file", "")
	v.SetDefault("bot.api_base_url", "http://localhost:8080")
	v.SetDefault("bot.api_key", "")
	v.SetDefault("bot.api_key_file", "")
	v.SetDefault("bot.global_rps", 25)
	v.SetDefault("bot.global_burst", 50)
	v.SetDefault("bot.cooldown_ms", 900)
	v.SetDefault("bot.debug_updates", false)

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundErr) {
			return Config{}, fmt.Errorf("read config file failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config failed: %w", err)
	}

	if strings.TrimSpace(cfg.Bot.Token) == "" && strings.TrimSpace(cfg.Bot.TokenFile) != "" {
		// #nosec G304 -- path is provided by operator config.
		raw, err := os.ReadFile(strings.TrimSpace(cfg.Bot.TokenFile))
		if err != nil {
			return Config{}, fmt.Errorf("read bot.token_file failed: %w", err)
		}
		cfg.Bot.Token = strings.TrimSpace(string(raw))
	}
	if strings.TrimSpace(cfg.Bot.APIKey) == "" && strings.TrimSpace(cfg.Bot.APIKeyFile) != "" {
		// #nosec G304 -- path is provided by operator config.
		raw, err := os.ReadFile(strings.TrimSpace(cfg.Bot.APIKeyFile))
		if err != nil {
			return Config{}, fmt.Errorf("read bot.api_key_file failed: %w", err)
		}
		cfg.Bot.APIKey = strings.TrimSpace(string(raw))
	}

	if strings.TrimSpace(cfg.Bot.Token) == "" {
		return Config{}, errors.New("bot.token is required")
	}
	if strings.TrimSpace(cfg.Bot.APIKey) == "" {
		return Config{}, errors.New("bot.api_key is required")
	}
	if strings.TrimSpace(cfg.Bot.APIBaseURL) == "" {
		return Config{}, errors.New("bot.api_base_url is required")
	}
	if cfg.Bot.GlobalRPS <= 0 || cfg.Bot.GlobalBurst <= 0 {
		return Config{}, errors.New("bot.global_rps and bot.global_burst must be greater than 0")
	}

	return cfg, nil
}

func newLogger(cfg Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if strings.EqualFold(cfg.App.Env, "development") {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	if cfg.Log.Level != "" {
		if err := zapCfg.Level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			return nil, fmt.Errorf("invalid log.level: %w", err)
		}
	}
	if cfg.Log.Encoding != "" {
		zapCfg.Encoding = cfg.Log.Encoding
	}

	return zapCfg.Build()
}

func cooldownFromConfig(cfg Config) time.Duration {
	if cfg.Bot.CooldownMS <= 0 {
		return 0
	}
	return time.Duration(cfg.Bot.CooldownMS) * time.Millisecond
}
