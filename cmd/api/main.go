package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/reelview/internal/app/migrate"
	httpx "github.com/splax/reelview/internal/http"
	"github.com/splax/reelview/internal/repository"
	"github.com/splax/reelview/internal/repository/memory"
	"github.com/splax/reelview/internal/repository/postgres"
	"github.com/splax/reelview/internal/service/auth"
	"github.com/splax/reelview/internal/service/catalog"
	"github.com/splax/reelview/internal/service/watchlist"
	"github.com/splax/reelview/internal/tmdb"
	"github.com/splax/reelview/pkg/config"
	"github.com/splax/reelview/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", cfg.LogLevel)
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if strings.TrimSpace(cfg.TMDBAPIKey) == "" {
		log.Warn("TMDB_API_KEY is empty, catalog endpoints will return empty results")
	}

	users, health, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open storage", "storage", cfg.Storage, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	authSvc := auth.New(users, log, cfg)
	watchlistSvc := watchlist.New(users, log)

	upstream := tmdb.New(cfg.TMDBAPIKey, tmdb.Options{
		BaseURL:       cfg.TMDBBaseURL,
		Timeout:       cfg.TMDBTimeout,
		RatePerSecond: cfg.TMDBRatePerSecond,
	})
	cache := catalog.NewMemoryCache()
	if addr := strings.TrimSpace(cfg.CatalogRedisAddr); addr != "" {
		redisCache, err := catalog.NewRedisCache(addr, cfg.CatalogRedisPass, cfg.CatalogRedisDB, log)
		if err != nil {
			log.Warn("redis catalog cache unavailable", "error", err)
		} else {
			cache.Close()
			cache = redisCache
			if pinger, ok := redisCache.(repository.Pinger); ok {
				health["catalog_cache"] = pinger.Ping
			}
		}
	}
	defer cache.Close()
	catalogSvc := catalog.New(upstream, log, catalog.Options{
		Cache:      cache,
		CacheTTL:   cfg.CatalogCacheTTL,
		Region:     cfg.TMDBRegion,
		Registerer: prometheus.DefaultRegisterer,
	})

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
			if pinger, ok := redisLimiter.(repository.Pinger); ok {
				health["rate_limiter"] = pinger.Ping
			}
		}
	}

	router := httpx.NewRouter(log, authSvc, watchlistSvc, catalogSvc, limiter, httpx.Options{
		WebDir: cfg.WebDir,
		Health: health,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "storage", cfg.Storage, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// openStore selects the credential store. Postgres runs pending migrations
// before serving.
func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (repository.UserRepository, map[string]httpx.HealthCheck, func(), error) {
	health := make(map[string]httpx.HealthCheck)
	switch cfg.Storage {
	case config.StorageMemory:
		log.Warn("using in-memory storage, accounts are lost on restart")
		store := memory.New()
		health["database"] = store.Ping
		return store, health, func() {}, nil
	case config.StoragePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("database ping failed: %w", err)
		}
		runner, err := migrate.New(cfg.DatabaseURL, cfg.MigrationsDir, log)
		if err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("configure migrations: %w", err)
		}
		if err := runner.Ensure(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("migrations failed: %w", err)
		}
		repo := postgres.New(pool)
		health["database"] = repo.Ping
		return repo, health, pool.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}
