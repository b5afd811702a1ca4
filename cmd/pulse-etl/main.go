package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"pulse_etl/internal/config"
	"pulse_etl/internal/metrics"
	"pulse_etl/internal/publisher"
	"pulse_etl/internal/service"
	"pulse_etl/internal/source/otx"
	"pulse_etl/internal/storage/memory"
	"pulse_etl/internal/storage/mongo"
	"pulse_etl/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal, stopping after current record", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("etl run failed", "error", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	sink, runLog, closeSink, err := openSink(ctx, cfg.Sink, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	// Publisher stays a nil interface when disabled.
	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			return err
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	otxSource := otx.New(otx.Config{
		BaseURL:       cfg.API.BaseURL,
		APIKey:        cfg.API.APIKey,
		PageSize:      cfg.API.PageSize,
		ModifiedSince: cfg.API.ModifiedSince,
		Timeout:       cfg.API.Timeout,
	}, logger)

	etl := service.NewETLService(otxSource, sink, runLog, pub, logger, otx.PaginatorConfig{
		MaxPages:       cfg.API.MaxPages,
		MaxAttempts:    cfg.API.Retry.MaxAttempts,
		InitialBackoff: cfg.API.Retry.InitialBackoff,
		MaxBackoff:     cfg.API.Retry.MaxBackoff,
	})

	_, runErr := etl.Run(ctx)

	if path := cfg.Metrics.TextfilePath; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			logger.Warn("failed to write metrics textfile", "path", path, "error", err)
		}
	}

	return runErr
}

// openSink picks the store from the URI scheme.
func openSink(ctx context.Context, cfg config.SinkConfig, logger *slog.Logger) (service.PulseSink, service.RunLog, func(), error) {
	u, err := url.Parse(cfg.URI)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse sink uri: %w", err)
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		db, err := postgres.Connect(ctx, cfg.URI)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("connected to database", "sink", "postgres")
		sink := postgres.NewPulseSink(db)
		return sink, sink, func() { db.Close() }, nil

	case "mongodb", "mongodb+srv":
		client, err := mongo.Connect(ctx, cfg.URI)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("connected to database",
			"sink", "mongodb",
			"database", cfg.Database,
			"collection", cfg.Collection,
		)
		store := mongo.NewPulseStore(client.Database(cfg.Database), cfg.Collection)
		return store, store, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn("failed to disconnect from mongodb", "error", err)
			}
			logger.Info("mongodb connection closed")
		}, nil

	case "memory":
		logger.Warn("using in-memory sink, nothing will be persisted")
		store := memory.NewPulseStore()
		return store, store, func() {}, nil
	}

	return nil, nil, nil, errors.New("unsupported sink uri scheme: " + u.Scheme)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
