package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medreach/clinic-reminder-bot/internal/api/router"
	"github.com/medreach/clinic-reminder-bot/internal/app/bootstrap"
	appconfig "github.com/medreach/clinic-reminder-bot/internal/config"
	"github.com/medreach/clinic-reminder-bot/internal/transport"
	"github.com/medreach/clinic-reminder-bot/pkg/logging"
)

func main() {
	// Load .env if present; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, err := appconfig.Load()
	if err != nil {
		logging.Default().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-reminder-bot",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap.Build(ctx, cfg, prometheus.DefaultRegisterer, logger)
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		os.Exit(1)
	}

	routerCfg := &router.Config{
		Logger:         logger,
		MetricsHandler: promhttp.Handler(),
	}

	if rt.Telegram != nil {
		handle := func(ev transport.InboundEvent) {
			if err := rt.Telegram.Machine.HandleEvent(ctx, ev); err != nil {
				logger.Error("telegram event failed", "error", err, "identity", ev.Identity)
			}
		}
		if cfg.TelegramWebhookMode {
			routerCfg.TelegramWebhook = rt.TelegramClient.WebhookHandler(handle)
		} else {
			go func() {
				if err := rt.TelegramClient.Poll(ctx, handle); err != nil && ctx.Err() == nil {
					logger.Error("telegram polling stopped", "error", err)
				}
			}()
		}
		go rt.Telegram.Coordinator.Start(ctx)
	}

	if rt.WhatsApp != nil {
		go func() {
			err := rt.GreenAPIClient.Poll(ctx, func(ev transport.InboundEvent) {
				if err := rt.WhatsApp.Machine.HandleEvent(ctx, ev); err != nil {
					logger.Error("whatsapp event failed", "error", err, "identity", ev.Identity)
				}
			})
			if err != nil && ctx.Err() == nil {
				logger.Error("whatsapp polling stopped", "error", err)
			}
		}()
		go rt.WhatsApp.Coordinator.Start(ctx)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	cancel()

	if rt.Telegram != nil {
		rt.Telegram.Followups.Stop()
	}
	if rt.WhatsApp != nil {
		rt.WhatsApp.Followups.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("bot stopped")
}
