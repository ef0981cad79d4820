package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pelora/outreach/internal/api"
	"github.com/pelora/outreach/internal/campaign"
	"github.com/pelora/outreach/internal/config"
	"github.com/pelora/outreach/internal/db"
	"github.com/pelora/outreach/internal/metrics"
	"github.com/pelora/outreach/internal/quota"
	"github.com/pelora/outreach/internal/render"
	"github.com/pelora/outreach/internal/repository"
	"github.com/pelora/outreach/internal/snapshot"
	"github.com/pelora/outreach/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the campaign engine",
	Long:  `Start the outreach HTTP API and campaign dispatcher.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	snapshots, err := snapshot.New(cfg.Snapshot.Path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}
	defer snapshots.Close()

	var email, sms transport.Sender
	if cfg.Transports.SMTP.Host != "" {
		email = transport.NewSMTPSender(cfg.Transports.SMTP, logger)
	}
	if cfg.Transports.SMS.BaseURL != "" {
		sms = transport.NewSMSSender(cfg.Transports.SMS, logger)
	}

	m := metrics.New()

	campaigns := campaign.NewService(
		database.DB,
		snapshots,
		transport.NewManager(email, sms),
		render.NewLinkResolver(cfg.Portal.DefaultOrigin),
		m,
		logger,
		campaign.Options{
			BatchSize:           cfg.Dispatch.BatchSize,
			Concurrency:         cfg.Dispatch.Concurrency,
			BatchInterval:       cfg.Dispatch.BatchInterval,
			FatalErrorThreshold: cfg.Dispatch.FatalErrorThreshold,
		},
	)

	quotaSvc := quota.New(repository.NewDeliveryRepository(database.DB), 30*time.Second)

	// Refresh cached quota usage as soon as a campaign finishes so
	// consumers polling /quota see new sends without waiting out the TTL.
	campaigns.OnCampaignFinished(quotaSvc.Invalidate)

	server := api.NewServer(database.DB, campaigns, quotaSvc, m, cfg.Server.ListenAddr, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	// Running dispatchers observe the cancellation before the process
	// exits; in-flight batches finish, later batches do not start.
	campaigns.Shutdown()

	return nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
