package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabasePath string

	// TMDB
	TMDBAPIToken   string
	TMDBBaseURL    string
	TMDBImgBaseURL string

	// Upstream
	UpstreamTimeout time.Duration

	// Poster
	PosterMaxSize          int64
	PosterBackfillInterval time.Duration
	PosterMaxPerCycle      int

	// Rate Limit
	RateLimitGeneral int
	RateLimitSearch  int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// DatabaseURL はgolang-migrate用のSQLite接続URLを返す。
func (c *Config) DatabaseURL() string {
	return "sqlite://" + c.DatabasePath
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.TMDBAPIToken = os.Getenv("TMDB_API_TOKEN")
	if cfg.TMDBAPIToken == "" {
		missing = append(missing, "TMDB_API_TOKEN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DatabasePath = getEnvString("DATABASE_PATH", "movies.db")
	cfg.TMDBBaseURL = getEnvString("TMDB_BASE_URL", "https://api.themoviedb.org/3")
	cfg.TMDBImgBaseURL = getEnvString("TMDB_IMG_BASE_URL", "https://image.tmdb.org/t/p/w500")
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second)
	cfg.PosterMaxSize = getEnvInt64("POSTER_MAX_SIZE", 5242880)
	cfg.PosterBackfillInterval = getEnvDuration("POSTER_BACKFILL_INTERVAL", 10*time.Minute)
	cfg.PosterMaxPerCycle = getEnvInt("POSTER_MAX_PER_CYCLE", 20)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSearch = getEnvInt("RATE_LIMIT_SEARCH", 30)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
