package config

import (
	"log/slog"
	"time"
)

// Storage backends understood by the API service.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment        string
	Addr               string
	Storage            string
	DatabaseURL        string
	MigrationsDir      string
	JWTSecret          string
	SessionTTL         time.Duration
	LogLevel           slog.Level
	WebDir             string
	TMDBAPIKey         string
	TMDBBaseURL        string
	TMDBTimeout        time.Duration
	TMDBRatePerSecond  float64
	TMDBRegion         string
	CatalogCacheTTL    time.Duration
	CatalogRedisAddr   string
	CatalogRedisPass   string
	CatalogRedisDB     int
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":3000"),
		Storage:            GetString("STORAGE", StoragePostgres),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://reelview:reelview@db:5432/reelview?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		JWTSecret:          GetString("JWT_SECRET", ""),
		SessionTTL:         time.Duration(GetInt("SESSION_TTL_HOURS", 0)) * time.Hour,
		LogLevel:           GetLevel("LOG_LEVEL", slog.LevelInfo),
		WebDir:             GetString("WEB_DIR", "web"),
		TMDBAPIKey:         GetString("TMDB_API_KEY", ""),
		TMDBBaseURL:        GetString("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		TMDBTimeout:        time.Duration(GetInt("TMDB_TIMEOUT_SECONDS", 10)) * time.Second,
		TMDBRatePerSecond:  GetFloat("TMDB_RATE_PER_SECOND", 20),
		TMDBRegion:         GetString("TMDB_REGION", "IN"),
		CatalogCacheTTL:    time.Duration(GetInt("CATALOG_CACHE_TTL_SECONDS", 300)) * time.Second,
		CatalogRedisAddr:   GetString("CATALOG_CACHE_REDIS_ADDR", ""),
		CatalogRedisPass:   GetString("CATALOG_CACHE_REDIS_PASSWORD", ""),
		CatalogRedisDB:     GetInt("CATALOG_CACHE_REDIS_DB", 0),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
