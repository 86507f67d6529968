package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/trainer_booking/internal/api"
	"github.com/Freeeeeet/trainer_booking/internal/app"
	"github.com/Freeeeeet/trainer_booking/internal/config"
	"github.com/Freeeeeet/trainer_booking/internal/notify"
	"github.com/Freeeeeet/trainer_booking/internal/service"
	"github.com/go-telegram/bot"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepTimeout    = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := app.NewLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := app.OpenStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	notifier, err := newNotifier(cfg, storage, logger)
	if err != nil {
		return err
	}

	svc := service.New(service.Deps{
		Repos:    storage.Repos,
		Settings: storage.Settings,
		Notifier: notifier,
		Admins:   storage.Clients,
		Logger:   logger,
	}, service.Options{
		TrainingDuration: cfg.TrainingDuration,
		SettingsTTL:      cfg.SettingsCacheTTL,
	})

	if _, err := app.EnsureAdmin(ctx, storage.Clients, svc.Clients, cfg.BootstrapAdmin, logger); err != nil {
		return err
	}

	scheduler, err := app.NewScheduler(svc.Sweeper, cfg.SweepSchedule, sweepTimeout, logger)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(api.NewHandler(svc, logger), cfg.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("storage", cfg.Storage),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newNotifier входящие всегда, Telegram если задан токен
func newNotifier(cfg *config.Config, storage *app.Storage, logger *zap.Logger) (notify.Notifier, error) {
	channels := notify.Fanout{notify.NewInbox(storage.Inbox)}

	if cfg.TelegramToken == "" {
		logger.Info("TELEGRAM_TOKEN is not set, notifications go to the inbox only")
		return channels, nil
	}

	b, err := bot.New(cfg.TelegramToken)
	if err != nil {
		return nil, err
	}
	return append(channels, notify.NewTelegram(b, storage.Clients, logger)), nil
}
