package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MuhibNayem/quantify-go/api"
	"github.com/MuhibNayem/quantify-go/internal/config"
	"github.com/MuhibNayem/quantify-go/internal/keystore"
	"github.com/MuhibNayem/quantify-go/internal/metrics"
	"github.com/MuhibNayem/quantify-go/internal/telemetry"
	"github.com/MuhibNayem/quantify-go/session"
)

// app holds everything a command needs: validated config, logger, the
// hydrated session store, and the API client.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	storage  keystore.Store
	sessions *session.Store
	client   *api.Client

	shutdownTrace func(context.Context) error
}

// newApp loads config, opens the durable session store, hydrates the
// session, and builds the API client. Call close when done.
func newApp() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Debug("loaded config", "file", configFile)
	}

	shutdownTrace, err := telemetry.Setup(traceEnabled, Version)
	if err != nil {
		return nil, err
	}

	storage, err := keystore.OpenSQLite(cfg.Session.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	sessions := session.NewStore(storage, logger)
	sessions.Load()

	opts := []api.Option{
		api.WithBaseURL(cfg.API.BaseURL),
		api.WithTimeout(cfg.APITimeout()),
		api.WithLogger(logger),
		api.WithMetrics(metrics.New(prometheus.DefaultRegisterer)),
	}
	if cfg.API.AuthServiceURL != "" {
		opts = append(opts, api.WithAuthServiceURL(cfg.API.AuthServiceURL))
	}
	client := api.NewClient(sessions, opts...)

	return &app{
		cfg:           cfg,
		logger:        logger,
		storage:       storage,
		sessions:      sessions,
		client:        client,
		shutdownTrace: shutdownTrace,
	}, nil
}

func (a *app) close() {
	if err := a.storage.Close(); err != nil {
		a.logger.Warn("failed to close session store", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.shutdownTrace(ctx); err != nil {
		a.logger.Warn("failed to flush traces", "error", err)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
