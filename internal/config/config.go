// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Identity provider
	AuthURL            string
	AuthAnonKey        string
	AuthServiceRoleKey string
	AuthJWTSecret      string

	// Storage
	StorageURL          string
	StorageBucket       string
	PlaceholderImageURL string

	// Remote image
	ImageFetchTimeout time.Duration
	ImageMaxSize      int64

	// Rate Limit
	RedisURL             string
	RateLimitMaxAttempts int
	RateLimitWindow      time.Duration
	RateLimitGeneral     int
	RateLimitListing     int

	// Session
	SessionMaxAge        int
	SessionRetentionDays int
	CleanupInterval      time.Duration

	// Account deletion
	DeleteAccountURL string

	// Admin
	AdminDBPath string

	// Logging
	LogLevel string

	// Server
	ServerPort  string
	BaseURL     string
	FrontendURL string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定のものをまとめてエラーで返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DatabaseURL = required("DATABASE_URL")
	cfg.AuthURL = required("AUTH_URL")
	cfg.AuthAnonKey = required("AUTH_ANON_KEY")
	cfg.AuthServiceRoleKey = required("AUTH_SERVICE_ROLE_KEY")
	cfg.BaseURL = required("BASE_URL")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	cfg.AuthJWTSecret = getEnvString("AUTH_JWT_SECRET", "")
	cfg.StorageURL = getEnvString("STORAGE_URL", "")
	cfg.StorageBucket = getEnvString("STORAGE_BUCKET", "service-images")
	cfg.PlaceholderImageURL = getEnvString("PLACEHOLDER_IMAGE_URL", "/placeholder.svg")
	cfg.ImageFetchTimeout = getEnvDuration("IMAGE_FETCH_TIMEOUT", 10*time.Second)
	cfg.ImageMaxSize = getEnvInt64("IMAGE_MAX_SIZE", 5242880)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.RateLimitMaxAttempts = getEnvInt("RATE_LIMIT_MAX_ATTEMPTS", 5)
	cfg.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitListing = getEnvInt("RATE_LIMIT_LISTING", 10)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 604800)
	cfg.SessionRetentionDays = getEnvInt("SESSION_RETENTION_DAYS", 7)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.DeleteAccountURL = getEnvString("DELETE_ACCOUNT_URL", strings.TrimRight(cfg.BaseURL, "/")+"/functions/delete-account")
	cfg.AdminDBPath = getEnvString("ADMIN_DB_PATH", "")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.FrontendURL = getEnvString("FRONTEND_URL", cfg.BaseURL)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// SessionMaxAgeDuration はSessionMaxAge（秒）をtime.Durationで返す。
func (c *Config) SessionMaxAgeDuration() time.Duration {
	return time.Duration(c.SessionMaxAge) * time.Second
}

// OAuthCallbackURL はGoogleサインインのコールバック先を返す。
func (c *Config) OAuthCallbackURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/auth/google/callback"
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
