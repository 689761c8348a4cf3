package app

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/hitoshi/smartpaw/internal/account"
	"github.com/hitoshi/smartpaw/internal/admin"
	"github.com/hitoshi/smartpaw/internal/auth"
	"github.com/hitoshi/smartpaw/internal/config"
	"github.com/hitoshi/smartpaw/internal/handler"
	"github.com/hitoshi/smartpaw/internal/identity"
	"github.com/hitoshi/smartpaw/internal/listing"
	"github.com/hitoshi/smartpaw/internal/metrics"
	"github.com/hitoshi/smartpaw/internal/middleware"
	"github.com/hitoshi/smartpaw/internal/ratelimit"
	"github.com/hitoshi/smartpaw/internal/repository"
	"github.com/hitoshi/smartpaw/internal/security"
	"github.com/hitoshi/smartpaw/internal/session"
	"github.com/hitoshi/smartpaw/internal/storage"
)

// redisKeyPrefix は認証レート制限のRedisキーの接頭辞。
const redisKeyPrefix = "smartpaw:ratelimit:"

// server はAPIサーバーの構成要素と、停止時に解放するリソースを保持する。
type server struct {
	handler http.Handler
	closers []func()
}

// Close は構築時に確保したリソースを逆順に解放する。
func (s *server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildServer は設定とDB接続から全依存関係をワイヤリングし、ルーターを構築する。
func buildServer(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (*server, error) {
	srv := &server{}
	collector := metrics.NewCollector(reg)

	// 1. リポジトリの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	repos := listing.Repositories{
		Listings:  repository.NewPostgresListingRepo(db),
		Providers: repository.NewPostgresProviderRepo(db),
		Profiles:  repository.NewPostgresProfileRepo(db),
		Bookings:  repository.NewPostgresBookingRepo(db),
	}
	accountRepo := repository.NewPostgresAccountRepo(db)

	// 2. 外部サービスクライアントの初期化
	identityClient := identity.NewClient(identity.Config{
		BaseURL:        cfg.AuthURL,
		AnonKey:        cfg.AuthAnonKey,
		ServiceRoleKey: cfg.AuthServiceRoleKey,
		JWTSecret:      cfg.AuthJWTSecret,
	})
	deleteClient := account.NewClient(account.ClientConfig{
		Endpoint: cfg.DeleteAccountURL,
		AnonKey:  cfg.AuthAnonKey,
	})

	// 3. ドメインサービスの初期化
	listingService := listing.NewService(
		repos,
		newUploader(cfg),
		security.NewDescriptionSanitizer(),
		security.NewImageURLGuard(cfg.ImageFetchTimeout, cfg.ImageMaxSize),
		collector,
		listing.Config{
			Bucket:              cfg.StorageBucket,
			PlaceholderImageURL: cfg.PlaceholderImageURL,
		},
	)

	limiter, stopLimiter := newAuthLimiter(cfg)
	srv.closers = append(srv.closers, stopLimiter)

	coordinator := auth.NewCoordinator(
		auth.NewService(identityClient, deleteClient),
		limiter,
		listingService,
		collector,
	)
	accountService := account.NewService(identityClient, identityClient, accountRepo)

	sessions := session.NewManager(sessionRepo, identityClient, session.ManagerConfig{
		MaxAge: cfg.SessionMaxAgeDuration(),
	})

	kv, closeKV, err := newAdminKV(cfg)
	if err != nil {
		srv.Close()
		return nil, err
	}
	srv.closers = append(srv.closers, closeKV)

	guard, err := admin.NewGuard(kv)
	if err != nil {
		srv.Close()
		return nil, err
	}

	// 4. ルーターの構築
	rl := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	srv.closers = append(srv.closers, rl.Stop)

	srv.handler = handler.NewRouter(&handler.RouterDeps{
		SessionLoader: sessions,
		SessionConfig: middleware.SessionConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure:   cfg.CookieSecure,
			CookieDomain:   cfg.CookieDomain,
			TrustedOrigins: []string{cfg.FrontendURL, cfg.CORSAllowedOrigin},
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rl,
		HSTS:              cfg.CookieSecure,
		GuardTimeout:      5 * time.Second,

		HealthChecker:  db,
		Metrics:        metrics.Handler(reg),
		RequestMetrics: middleware.NewMetricsMiddleware(collector),
		RequestLogger:  middleware.NewLoggingMiddleware(slog.Default()),

		AuthCoordinator: coordinator,
		ProfileSyncer:   listingService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.FrontendURL,
			CallbackURL:   cfg.OAuthCallbackURL(),
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAgeDuration(),
		},

		ListingService: listingService,
		AccountService: accountService,
		AdminGuard:     guard,
	})

	return srv, nil
}

// rateLimiterConfig はreq/min単位の設定をreq/secのトークンバケットに変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlc := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rlc.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rlc.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitListing > 0 {
		rlc.ListingRate = rate.Limit(float64(cfg.RateLimitListing) / 60.0)
		rlc.ListingBurst = cfg.RateLimitListing
	}
	return rlc
}

// newAuthLimiter は認証アクションの試行回数制限を構築する。
// REDIS_URLが設定されていればRedisで試行回数を共有し、接続できなければプロセス内に記録する。
func newAuthLimiter(cfg *config.Config) (*ratelimit.Limiter, func()) {
	limits := ratelimit.Config{
		MaxAttempts: cfg.RateLimitMaxAttempts,
		Window:      cfg.RateLimitWindow,
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Warn("invalid REDIS_URL, using in-memory rate limit store",
				slog.String("error", err.Error()),
			)
		} else {
			client := redis.NewClient(opts)
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := client.Ping(ctx).Err()
			cancel()
			if err == nil {
				slog.Info("auth rate limiter uses redis")
				return ratelimit.New(ratelimit.NewRedisStore(client, redisKeyPrefix), limits), func() { client.Close() }
			}
			slog.Warn("redis unreachable, using in-memory rate limit store",
				slog.String("error", err.Error()),
			)
			client.Close()
		}
	}

	store := ratelimit.NewMemoryStore(cfg.RateLimitWindow)
	return ratelimit.New(store, limits), store.Stop
}

// newAdminKV は管理画面のKVStoreを構築する。
// ADMIN_DB_PATHが未設定の場合はプロセス内に保持する。
func newAdminKV(cfg *config.Config) (admin.KVStore, func(), error) {
	if cfg.AdminDBPath == "" {
		return admin.NewMemoryKV(), func() {}, nil
	}
	kv, err := admin.NewSQLiteKV(cfg.AdminDBPath)
	if err != nil {
		return nil, nil, err
	}
	return kv, func() { kv.Close() }, nil
}

// newUploader はSTORAGE_URLが設定されている場合のみストレージクライアントを返す。
// nilの場合、掲載画像は常にプレースホルダーになる。
func newUploader(cfg *config.Config) listing.Uploader {
	if cfg.StorageURL == "" {
		return nil
	}
	return storage.NewClient(storage.Config{
		BaseURL: cfg.StorageURL,
		APIKey:  cfg.AuthServiceRoleKey,
	})
}
