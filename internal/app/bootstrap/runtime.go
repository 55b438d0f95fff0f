// Package bootstrap assembles the bot's runtime from configuration: stores,
// dialog machines, scan coordinators and transport clients.
package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/medreach/clinic-reminder-bot/internal/config"
	"github.com/medreach/clinic-reminder-bot/internal/dialog"
	"github.com/medreach/clinic-reminder-bot/internal/followup"
	"github.com/medreach/clinic-reminder-bot/internal/notify"
	"github.com/medreach/clinic-reminder-bot/internal/observability/metrics"
	"github.com/medreach/clinic-reminder-bot/internal/scan"
	"github.com/medreach/clinic-reminder-bot/internal/store"
	"github.com/medreach/clinic-reminder-bot/internal/transport"
	"github.com/medreach/clinic-reminder-bot/internal/transport/greenapi"
	"github.com/medreach/clinic-reminder-bot/internal/transport/telegram"
	"github.com/medreach/clinic-reminder-bot/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil so the bot
// falls back to in-memory dialog state.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, using in-memory dialog state", "error", err)
		return nil
	}
	return client
}

// BuildStateStore returns the dialog state store for one transport namespace.
func BuildStateStore(redisClient *redis.Client, namespace string, ttl time.Duration) dialog.StateStore {
	if redisClient == nil {
		return dialog.NewMemoryStateStore()
	}
	return dialog.NewRedisStateStore(redisClient, namespace, ttl)
}

// Channel bundles everything one transport needs at runtime.
type Channel struct {
	Machine     *dialog.Machine
	Coordinator *scan.Coordinator
	Followups   *followup.Scheduler
}

// Runtime is the fully wired bot.
type Runtime struct {
	Config   *appconfig.Config
	Tables   *store.Tables
	Telegram *Channel
	WhatsApp *Channel

	TelegramClient *telegram.Client
	GreenAPIClient *greenapi.Client

	ScanMetrics   *metrics.ScanMetrics
	DialogMetrics *metrics.DialogMetrics
}

// Build opens the CSV tables and wires a Channel per enabled transport.
// Collectors are registered on reg; a nil reg means the default registerer.
func Build(ctx context.Context, cfg *appconfig.Config, reg prometheus.Registerer, logger *logging.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load timezone %q: %w", cfg.ClinicTimezone, err)
	}

	tables, err := store.OpenTables(store.Paths{
		Users:    cfg.UsersCSVPath,
		Tomorrow: cfg.TomorrowCSVPath,
		TwoHours: cfg.TwoHoursCSVPath,
		Reviews:  cfg.ReviewsCSVPath,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open tables: %w", err)
	}

	redisClient := BuildRedisClient(ctx, cfg, logger, true)

	rt := &Runtime{
		Config:        cfg,
		Tables:        tables,
		ScanMetrics:   metrics.NewScanMetrics(reg),
		DialogMetrics: metrics.NewDialogMetrics(reg),
	}

	if cfg.TelegramEnabled() {
		rt.TelegramClient = telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramAPIBaseURL, cfg.TelegramPollTimeout, logger)
		rt.Telegram = buildChannel(cfg, channelDeps{
			transport:    transport.Telegram,
			userIDColumn: store.ColTelegramID,
			sender:       rt.TelegramClient,
			managerID:    cfg.TelegramManagerID,
			states:       BuildStateStore(redisClient, "telegram", cfg.DialogTTL),
			location:     loc,
			logger:       logger,
			metrics:      rt,
		})
		logger.Info("telegram channel enabled", "webhook_mode", cfg.TelegramWebhookMode)
	}

	if cfg.GreenAPIEnabled() {
		rt.GreenAPIClient = greenapi.NewClient(cfg.GreenAPIBaseURL, cfg.GreenAPIInstanceID, cfg.GreenAPIToken, logger)
		rt.WhatsApp = buildChannel(cfg, channelDeps{
			transport:    transport.WhatsApp,
			userIDColumn: store.ColWhatsAppID,
			sender:       rt.GreenAPIClient,
			managerID:    cfg.GreenAPIManagerID,
			states:       BuildStateStore(redisClient, "whatsapp", cfg.DialogTTL),
			location:     loc,
			logger:       logger,
			metrics:      rt,
		})
		logger.Info("whatsapp channel enabled", "instance_id", cfg.GreenAPIInstanceID)
	}

	if rt.Telegram == nil && rt.WhatsApp == nil {
		return nil, fmt.Errorf("bootstrap: no transport configured")
	}
	return rt, nil
}

type channelDeps struct {
	transport    transport.Transport
	userIDColumn string
	sender       transport.Sender
	managerID    string
	states       dialog.StateStore
	location     *time.Location
	logger       *logging.Logger
	metrics      *Runtime
}

func buildChannel(cfg *appconfig.Config, deps channelDeps) *Channel {
	escalator := notify.NewEscalator(deps.sender, deps.managerID, deps.location, deps.logger)
	email := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, deps.logger)
	if email != nil {
		escalator = escalator.WithEmail(email, cfg.SendGridToEmail, cfg.SendGridToName)
	}

	followups := followup.NewScheduler(deps.sender, deps.logger)

	machine := dialog.NewMachine(
		dialog.Config{
			Transport:         deps.transport,
			UserIDColumn:      deps.userIDColumn,
			RebookingBaseURL:  cfg.RebookingBaseURL,
			RebookingClientID: cfg.RebookingClientID,
			RebookingPhone:    cfg.RebookingPhone,
			ReviewSiteURL:     cfg.ReviewSiteURL,
			FollowupDelay:     cfg.FollowupDelay,
			ScoreThanksDelay:  cfg.ScoreThanksDelay,
			DetailThanksDelay: cfg.DetailThanksDelay,
			Location:          deps.location,
		},
		deps.states,
		deps.metrics.Tables,
		deps.sender,
		escalator,
		followups,
		deps.metrics.DialogMetrics,
		deps.logger,
	)

	coordinator := scan.NewCoordinator(
		scan.Config{
			Transport:    deps.transport,
			UserIDColumn: deps.userIDColumn,
			Interval:     cfg.ScanInterval,
			Concurrency:  cfg.ScanConcurrency,
		},
		deps.metrics.Tables,
		machine,
		deps.sender,
		deps.metrics.ScanMetrics,
		deps.logger,
	)

	return &Channel{Machine: machine, Coordinator: coordinator, Followups: followups}
}
