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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/efreitasn/brokerledger/internal/cache"
	"github.com/efreitasn/brokerledger/internal/config"
	"github.com/efreitasn/brokerledger/internal/engine"
	"github.com/efreitasn/brokerledger/internal/events"
	"github.com/efreitasn/brokerledger/internal/handler"
	"github.com/efreitasn/brokerledger/internal/service"
	"github.com/efreitasn/brokerledger/internal/store"
	"github.com/efreitasn/brokerledger/internal/store/memory"
	"github.com/efreitasn/brokerledger/internal/store/postgres"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cfg, logger); err != nil {
		logger.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Ledger store.
	var ledger store.Ledger
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.LockTimeout)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		ledger = pg
		logger.Info("using postgres ledger store")
	} else {
		ledger = memory.New()
		logger.Warn("DATABASE_URL not set, using in-memory ledger store")
	}

	// Book depth cache.
	var books cache.BookCache = cache.NopBookCache{}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, book cache reads will fall back to the ledger",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
		}
		books = cache.NewRedisBookCache(client, cfg.BookCacheTTL, "")
	}

	// Event publisher.
	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger, events.NewMetrics(registry))
		if err != nil {
			return err
		}
		publisher = kp
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("close event publisher", slog.String("error", err.Error()))
		}
	}()

	// Engine.
	e := engine.New(ledger, engine.Options{
		SettlementWindow: cfg.SettlementWindow,
		DeferredDelay:    cfg.DeferredExecutionDelay,
		Logger:           logger,
		Metrics:          engine.NewMetrics(registry),
	})

	// Services.
	dispatcher := service.NewEventDispatcher(publisher, logger)
	services := handler.Services{
		Accounts: service.NewAccountService(e),
		Trading:  service.NewTradingService(e, books, dispatcher, logger),
		Orders:   service.NewOrderService(e, books, dispatcher, logger),
		Stocks:   service.NewStockService(e, books, logger),
	}

	// Sweeper executes deferred orders as they come due.
	sweeper := engine.NewSweeper(cfg.DeferredSweepInterval, cfg.DeferredSweepBatch, e, services.Orders, logger)
	sweeper.Start(ctx)

	// Router.
	router := handler.NewRouter(services, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), logger)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown: stop HTTP server, cancel context (stops the sweeper).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	logger.Info("server stopped")
	return nil
}
