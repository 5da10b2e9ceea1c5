package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/account"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/apiclient"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/auth"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/config"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/execution"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/gateway"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/journal"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/metrics"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/pricefeed"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/refresh"
	pgRepo "github.com/HamedDawoudzai/hybrid-exchange/internal/repository/postgres"
	redisRepo "github.com/HamedDawoudzai/hybrid-exchange/internal/repository/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	session := auth.NewSession()
	session.OnExpired(func() {
		logger.Warn("session expired, sign in again")
	})

	client := apiclient.New(session, apiclient.Options{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.RequestTimeout,
		RPS:     cfg.RateLimitRPS,
		Burst:   cfg.RateLimitBurst,
		Logger:  logger,
	})

	var (
		cache  refresh.Store    = refresh.NewMemoryStore()
		broker pricefeed.Broker = pricefeed.NewMemoryBroker(0)
		quotes pricefeed.QuoteStore
	)
	if cfg.RedisURL != "" {
		redisClient, err := redisRepo.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		logger.Info("redis connected")
		priceRepo := redisRepo.NewPriceRepo(redisClient)
		cache = redisRepo.NewCacheRepo(redisClient, "", 0)
		broker = priceRepo
		quotes = priceRepo
	}

	var rec journal.Recorder = journal.NewMemory(0)
	if cfg.DatabaseURL != "" {
		db, err := pgRepo.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		logger.Info("database connected")

		if err := pgRepo.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			logger.Error("failed to run migrations", "err", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
		rec = pgRepo.NewJournalRepo(db)
	}

	queries := refresh.New(cache, refresh.Options{
		Stale:   cfg.Stale,
		Subject: session.SubjectFor,
		Logger:  logger,
		Metrics: m,
	})
	reader := refresh.NewReader(queries, client)

	board := pricefeed.NewBoard()
	poller := pricefeed.NewPoller(client, board, broker, quotes, m, logger)
	feed := pricefeed.NewFeed(board, quotes, client, 2*cfg.PricePollInterval)

	orders := execution.NewOrderService(client, reader, feed, nil, session, rec, m, logger)
	accounts := account.NewService(client, reader, orders.Holds(), poller, session, rec, m, logger)
	tracker := execution.NewTracker(reader, gateway.TransitionNotifier(broker, session, logger), m, logger)

	hub := gateway.NewHub(broker, poller, logger).WithLookup(feed.Quote, cfg.SymbolDebounce)
	handlers := gateway.NewHandlers(reader, client, orders, accounts, feed, board, rec, session, logger)
	router := gateway.NewRouter(handlers, hub, session, gateway.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		Metrics:     m.Handler(),
	})

	go hub.Run(ctx)
	go poller.Run(ctx, cfg.PricePollInterval)
	go tracker.Run(ctx, cfg.TrackInterval)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "api", cfg.APIBaseURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	logger.Info("server stopped")
}
