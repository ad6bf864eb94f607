package config

import (
	"testing"
	"time"
)

// 必須環境変数が全て設定されている場合にLoadが成功することを検証
func TestLoad_AllRequired(t *testing.T) {
	t.Setenv("TMDB_API_TOKEN", "test-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load がエラーを返した: %v", err)
	}

	if cfg.TMDBAPIToken != "test-token" {
		t.Errorf("TMDBAPIToken = %q, want %q", cfg.TMDBAPIToken, "test-token")
	}
}

// 必須環境変数が未設定の場合にLoadがエラーを返すことを検証
func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("TMDB_API_TOKEN", "")

	_, err := Load()
	if err == nil {
		t.Fatal("TMDB_API_TOKEN 未設定時はエラーが返されるべき")
	}
}

// オプション環境変数のデフォルト値を検証
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TMDB_API_TOKEN", "test-token")
	t.Setenv("DATABASE_PATH", "")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("TMDB_BASE_URL", "")
	t.Setenv("UPSTREAM_TIMEOUT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load がエラーを返した: %v", err)
	}

	if cfg.DatabasePath != "movies.db" {
		t.Errorf("DatabasePath = %q, want %q", cfg.DatabasePath, "movies.db")
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "8080")
	}
	if cfg.TMDBBaseURL != "https://api.themoviedb.org/3" {
		t.Errorf("TMDBBaseURL = %q, want デフォルトのTMDB APIベースURL", cfg.TMDBBaseURL)
	}
	if cfg.TMDBImgBaseURL != "https://image.tmdb.org/t/p/w500" {
		t.Errorf("TMDBImgBaseURL = %q, want デフォルトの画像ベースURL", cfg.TMDBImgBaseURL)
	}
	if cfg.UpstreamTimeout != 10*time.Second {
		t.Errorf("UpstreamTimeout = %v, want 10s", cfg.UpstreamTimeout)
	}
	if cfg.RateLimitGeneral != 120 {
		t.Errorf("RateLimitGeneral = %d, want 120", cfg.RateLimitGeneral)
	}
	if cfg.RateLimitSearch != 30 {
		t.Errorf("RateLimitSearch = %d, want 30", cfg.RateLimitSearch)
	}
	if cfg.PosterBackfillInterval != 10*time.Minute {
		t.Errorf("PosterBackfillInterval = %v, want 10m", cfg.PosterBackfillInterval)
	}
}

// オプション環境変数の上書きを検証
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TMDB_API_TOKEN", "test-token")
	t.Setenv("DATABASE_PATH", "/data/cinelog.db")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("UPSTREAM_TIMEOUT", "3s")
	t.Setenv("RATE_LIMIT_SEARCH", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load がエラーを返した: %v", err)
	}

	if cfg.DatabasePath != "/data/cinelog.db" {
		t.Errorf("DatabasePath = %q, want %q", cfg.DatabasePath, "/data/cinelog.db")
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "9090")
	}
	if cfg.UpstreamTimeout != 3*time.Second {
		t.Errorf("UpstreamTimeout = %v, want 3s", cfg.UpstreamTimeout)
	}
	if cfg.RateLimitSearch != 5 {
		t.Errorf("RateLimitSearch = %d, want 5", cfg.RateLimitSearch)
	}
}

// 不正な形式のオプション環境変数はデフォルト値にフォールバックすることを検証
func TestLoad_InvalidOptionalFallsBack(t *testing.T) {
	t.Setenv("TMDB_API_TOKEN", "test-token")
	t.Setenv("UPSTREAM_TIMEOUT", "not-a-duration")
	t.Setenv("RATE_LIMIT_GENERAL", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load がエラーを返した: %v", err)
	}

	if cfg.UpstreamTimeout != 10*time.Second {
		t.Errorf("UpstreamTimeout = %v, want デフォルト10s", cfg.UpstreamTimeout)
	}
	if cfg.RateLimitGeneral != 120 {
		t.Errorf("RateLimitGeneral = %d, want デフォルト120", cfg.RateLimitGeneral)
	}
}

// DatabaseURL がmigrate用のsqliteスキームURLを返すことを検証
func TestConfig_DatabaseURL(t *testing.T) {
	cfg := &Config{DatabasePath: "/tmp/movies.db"}
	want := "sqlite:///tmp/movies.db"
	if got := cfg.DatabaseURL(); got != want {
		t.Errorf("DatabaseURL() = %q, want %q", got, want)
	}
}
