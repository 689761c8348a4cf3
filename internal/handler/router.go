package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/smartpaw/internal/middleware"
)

// deleteAccountFunctionPath はBearerトークンで認証するアカウント削除エンドポイント。
const deleteAccountFunctionPath = "/functions/delete-account"

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionLoader     middleware.SessionLoader
	SessionConfig     middleware.SessionConfig
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	HSTS              bool
	GuardTimeout      time.Duration

	// 観測
	HealthChecker  HealthChecker
	Metrics        http.Handler
	RequestMetrics func(next http.Handler) http.Handler
	RequestLogger  func(next http.Handler) http.Handler

	// 認証
	AuthCoordinator AuthCoordinator
	ProfileSyncer   ProfileSyncer
	AuthConfig      AuthHandlerConfig

	// 掲載・予約
	ListingService ListingServiceInterface

	// アカウント削除
	AccountService AccountWithdrawer

	// デモ用管理画面
	AdminGuard AdminGuard
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → RequestLogger → RequestMetrics → CORS →
//	Session → CSRF → RateLimit(General)
//
// /health と /metrics はセッションの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	if deps.RequestLogger != nil {
		r.Use(deps.RequestLogger)
	}
	if deps.RequestMetrics != nil {
		r.Use(deps.RequestMetrics)
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// --- セッション不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	authHandler := NewAuthHandler(deps.AuthCoordinator, deps.ProfileSyncer, deps.AuthConfig)
	listingHandler := NewListingHandler(deps.ListingService)
	accountHandler := NewAccountHandler(deps.AccountService)
	adminHandler := NewAdminHandler(deps.AdminGuard)

	csrfConfig := deps.CSRFConfig
	csrfConfig.ExemptPaths = append(csrfConfig.ExemptPaths, deleteAccountFunctionPath)

	// --- ブラウザセッションを持つルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionLoader, deps.SessionConfig))
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig).ServeHTTP)

		// 認証アクション
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.SignUp)
			r.Post("/signin", authHandler.SignIn)
			r.Get("/google/login", authHandler.GoogleLogin)
			r.Get("/google/callback", authHandler.GoogleCallback)
			r.Post("/signout", authHandler.SignOut)
			r.Get("/me", authHandler.Me)
		})

		// 公開された掲載
		r.Get("/api/services", listingHandler.ListListings)
		r.Get("/api/services/{kind}/{id}", listingHandler.GetListing)

		// Bearerトークンで認証するアカウント削除
		r.Post(deleteAccountFunctionPath, accountHandler.DeleteAccount)

		// デモ用管理画面（通常の認証とは独立）
		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", adminHandler.Login)
			r.Post("/logout", adminHandler.Logout)
			r.Get("/dashboard", adminHandler.Dashboard)
		})

		// 保護ページ: 未認証は/loginへリダイレクト
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRouteGuard(middleware.ProtectedPages, deps.GuardTimeout))
			for _, page := range middleware.ProtectedPages {
				r.Get(page, ProtectedPage)
			}
		})

		// --- 認証が必要なAPI ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRequireAuthMiddleware())

			r.Delete("/api/account", authHandler.DeleteAccount)

			r.Route("/api/seller", func(r chi.Router) {
				r.Get("/profile", listingHandler.GetProviderProfile)
				r.Put("/profile", listingHandler.UpsertProviderProfile)
				r.Get("/services", listingHandler.ListOwnListings)
				// 掲載作成は専用レート制限を追加
				r.With(deps.RateLimiter.ListingMiddleware()).Post("/services", listingHandler.CreateListing)
			})

			r.Route("/api/bookings", func(r chi.Router) {
				r.Get("/", listingHandler.ListBookings)
				r.Post("/", listingHandler.CreateBooking)
			})
		})
	})

	return r
}
