// Package main is the entry point of the Rust Playground bot.
//
// main reads the configuration, builds every dependency, and runs the bot in
// the configured Telegram mode next to the HTTP server (probes, metrics and,
// in webhook mode, update deliveries) until SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sakif/rpg-bot/internal/bot"
	"github.com/sakif/rpg-bot/internal/config"
	"github.com/sakif/rpg-bot/internal/executor"
	"github.com/sakif/rpg-bot/internal/executor/docker"
	"github.com/sakif/rpg-bot/internal/executor/playground"
	"github.com/sakif/rpg-bot/internal/i18n"
	sqliteRepo "github.com/sakif/rpg-bot/internal/repository/sqlite"
	"github.com/sakif/rpg-bot/internal/server"
	"github.com/sakif/rpg-bot/internal/service"
	"github.com/sakif/rpg-bot/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, config.Usage())
		os.Exit(2)
	}

	logger := setupLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("bot stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// setupLogger picks a human-readable handler for local runs and JSON
// everywhere else.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	if cfg.Env == config.EnvLocal {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === STORE ===
	if cfg.DatabaseURL != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabaseURL), 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	catalog, err := i18n.Load()
	if err != nil {
		return fmt.Errorf("loading translations: %w", err)
	}

	// === EXECUTOR ===
	var exec executor.Executor
	switch cfg.Executor.Backend {
	case config.BackendDocker:
		d, err := docker.New(docker.DefaultConfig(), logger)
		if err != nil {
			return fmt.Errorf("starting docker executor: %w", err)
		}
		defer d.Close()
		exec = d
		logger.Warn("docker backend cannot share snippets; /share will fail")
	default:
		exec = playground.New(cfg.Executor.PlaygroundURL, cfg.Executor.PlaygroundTimeout, logger)
	}

	// === SERVICES ===
	users := service.NewUserService(db.Users(), catalog, cfg.SuperUserID, logger)
	if cfg.SuperUserID == "" {
		logger.Warn("SUPER_USER_ID not set; nobody can reach the admin commands")
	}

	// === TELEGRAM ===
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("connecting to telegram: %w", err)
	}
	logger.Info("authorized on telegram", slog.String("username", api.Self.UserName))

	b := bot.New(bot.Deps{
		Messenger: telegram.NewMessenger(api, cfg.Telegram.RPS, cfg.Telegram.Burst, logger),
		Settings:  service.NewSettingsService(db.Config(), logger),
		Users:     users,
		Sources:   service.NewSourceService(db.SourceCodes(), logger),
		Execution: service.NewExecutionService(exec, users, logger),
		Catalog:   catalog,
		Logger:    logger,
		Username:  api.Self.UserName,
	})
	receiver := telegram.NewReceiver(b, cfg.WorkerLimit, logger)

	srvCfg := server.Config{
		Addr:        cfg.HTTPServer.Address,
		Timeout:     cfg.HTTPServer.Timeout,
		IdleTimeout: cfg.HTTPServer.IdleTimeout,
		Mode:        cfg.Telegram.Mode,
	}

	// === RUN ===
	if cfg.Telegram.Mode == config.ModeWebhook {
		if err := telegram.SetWebhook(api, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			return err
		}
		srv := server.New(srvCfg, db, receiver.Webhook(api, cfg.Telegram.WebhookSecret), logger)
		err := srv.Run(ctx)
		receiver.Wait()
		return err
	}

	if err := telegram.DeleteWebhook(api); err != nil {
		return err
	}
	srv := server.New(srvCfg, db, nil, logger)

	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Run(ctx) }()

	if err := receiver.Poll(ctx, api, cfg.Telegram.PollingTimeout); err != nil {
		stop()
		<-serverErr
		return err
	}
	return <-serverErr
}
