package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/toreca-arbitrage/internal/api"
	"github.com/maltedev/toreca-arbitrage/internal/arbitrage"
	"github.com/maltedev/toreca-arbitrage/internal/catalog"
	"github.com/maltedev/toreca-arbitrage/internal/config"
	"github.com/maltedev/toreca-arbitrage/internal/database"
	"github.com/maltedev/toreca-arbitrage/internal/exchange"
	"github.com/maltedev/toreca-arbitrage/internal/market"
	"github.com/maltedev/toreca-arbitrage/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	envFile := flag.String("env", "", "Optional .env file (defaults to ./.env)")
	flag.Parse()

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}

	cfg, err := config.Load(envFiles...)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	if err := cfg.ValidateServer(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}

	store, closeStore, err := database.OpenSnapshotStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open snapshot store", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	var cache market.ResponseCache
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, market cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			cache = market.NewRedisCache(redisClient, cfg.Market.CacheTTL)
		}
	}

	feed, err := market.NewClient(market.Options{
		BaseURL:           cfg.Market.BaseURL,
		APIKey:            cfg.Market.APIKey,
		Timeout:           cfg.Market.Timeout,
		Language:          cfg.Market.Language,
		Limit:             cfg.Market.Limit,
		HistoryDays:       cfg.Market.HistoryDays,
		RequestsPerSecond: cfg.Market.RateLimit,
	}, cat, cache, log)
	if err != nil {
		log.Error("failed to create market client", "error", err)
		os.Exit(1)
	}

	rates := exchange.NewCache(
		exchange.NewHTTPRateFetcher(cfg.Exchange.URL, cfg.Exchange.Timeout),
		exchange.CacheOptions{
			TTL:          cfg.Exchange.TTL,
			FallbackRate: cfg.Exchange.FallbackRate,
			ServeStale:   cfg.Exchange.ServeStale,
		},
		log,
	)

	service := arbitrage.NewService(arbitrage.NewMatcher(cat), store, feed, rates, log)
	handlers := api.NewHandlers(service, cat, store, rates, log)

	server := &http.Server{
		Addr: net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(handlers, api.RouterOptions{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down server")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("server starting",
		"addr", server.Addr,
		"snapshot_backend", cfg.Storage.Backend,
		"market_cache", cache != nil)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
