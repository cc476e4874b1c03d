package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pointtbridge/config"
	"pointtbridge/internal/api"
	"pointtbridge/internal/auth"
	"pointtbridge/internal/engine"
	"pointtbridge/internal/logging"
	"pointtbridge/internal/notify"
	"pointtbridge/internal/pointt"
	"pointtbridge/internal/storage/sqlite"
)

const (
	shutdownTimeout   = 10 * time.Second
	defaultConfigPath = "config.json"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse command-line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	useEnv := flag.Bool("env", false, "Load configuration from environment variables")
	logFormat := flag.String("log-format", "json", "Log format (json or text)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	// Pick up a local .env if present; ignored when absent
	_ = godotenv.Load()

	logger := logging.NewLogger(logging.LoggerConfig{
		Format: *logFormat,
		Level:  logging.ParseLevel(*logLevel),
	})
	slog.SetDefault(logger)

	// Load configuration
	var cfg *config.Config
	var err error
	if *useEnv {
		cfg, err = config.LoadFromEnv()
	} else {
		cfg, err = config.Load(*configPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("Starting pointtbridge",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"roots", len(cfg.Cloud.Roots),
		"poll_interval_seconds", cfg.Cloud.PollIntervalSeconds,
	)

	// Initialize database
	db, err := sqlite.New(cfg.Database.Path, cfg.Cloud.DeviceID)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// Initialize the token manager and restore a persisted session
	manager := auth.NewManager(auth.Config{
		ClientID:    cfg.Cloud.ClientID,
		LoginURL:    cfg.Cloud.LoginURL,
		TokenURL:    cfg.Cloud.TokenURL,
		RedirectURI: cfg.Cloud.RedirectURI,
	}, db, logger)

	if err := manager.Restore(context.Background()); err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}
	if manager.State() == auth.StateUnauthenticated {
		logger.Warn("No persisted session, run pointt-login or POST /v1/auth/url to sign in")
	}

	// Cloud client and graph walker
	client := pointt.NewClient(pointt.Config{
		BaseURL:  cfg.Cloud.BaseURL,
		DeviceID: cfg.Cloud.DeviceID,
	}, manager, logger)

	walker := pointt.NewWalker(client, cfg.Cloud.MaxConcurrentFetches, logger)

	// Polling coordinator
	coordinator := engine.NewCoordinator(engine.Config{
		Roots:            cfg.Cloud.Roots,
		Interval:         time.Duration(cfg.Cloud.PollIntervalSeconds) * time.Second,
		CycleTimeout:     time.Duration(cfg.Cloud.CycleTimeoutSeconds) * time.Second,
		FailureThreshold: cfg.Cloud.FailureThreshold,
	}, walker, logger)

	if cfg.Telegram.Enabled {
		notifier, err := notify.NewNotifier(notify.Config{
			Token:  cfg.Telegram.Token,
			ChatID: cfg.Telegram.ChatID,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create telegram notifier: %w", err)
		}
		coordinator.AddListener(notifier)
		logger.Info("Telegram notifier enabled", "chat_id", cfg.Telegram.ChatID)
	}

	pollCtx, cancelPolling := context.WithCancel(context.Background())
	defer cancelPolling()
	go coordinator.Start(pollCtx)

	// REST API server
	router := api.NewRouter(api.RouterConfig{
		Coordinator: coordinator,
		Auth:        manager,
		Client:      client,
		Cloud:       cfg.Cloud,
		APIKey:      cfg.Security.APIKey,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("Starting graceful shutdown", "signal", sig.String())

		// Stop polling; in-flight cloud requests are cancelled
		coordinator.Stop()
		cancelPolling()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		logger.Info("Graceful shutdown complete")
	}

	return nil
}
