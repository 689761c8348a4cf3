package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/smartpaw/internal/admin"
	"github.com/hitoshi/smartpaw/internal/metrics"
	"github.com/hitoshi/smartpaw/internal/middleware"
	"github.com/hitoshi/smartpaw/internal/model"
	"github.com/hitoshi/smartpaw/internal/session"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// createTestRouter はテスト用の完全なルーターを構築するヘルパー。
func createTestRouter(t *testing.T, store *session.Store, checker HealthChecker) http.Handler {
	t.Helper()

	guard, err := admin.NewGuard(admin.NewMemoryKV(), admin.WithBcryptCost(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	return NewRouter(&RouterDeps{
		SessionLoader:     &staticLoader{store: store},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		GuardTimeout:      100 * time.Millisecond,
		HealthChecker:     checker,
		Metrics:           metrics.Handler(reg),
		RequestMetrics:    middleware.NewMetricsMiddleware(collector),
		AuthCoordinator:   &mockAuthCoordinator{},
		AuthConfig:        testAuthConfig,
		ListingService: &mockListingService{
			getListingFn: func(ctx context.Context, kind model.ServiceKind, id uuid.UUID) (*model.Listing, error) {
				return sampleListing(kind), nil
			},
		},
		AccountService: &mockAccountWithdrawer{},
		AdminGuard:     guard,
	})
}

func TestRouter_Routes(t *testing.T) {
	anonymous := settledStore("browser-anon", nil)
	signedIn := settledStore("browser-user", testSession(model.UserTypeServiceProvider))

	tests := []struct {
		name         string
		store        *session.Store
		method       string
		path         string
		header       map[string]string
		wantStatus   int
		wantLocation string
	}{
		{name: "ヘルスチェック", store: anonymous, method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "メトリクス", store: anonymous, method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK},
		{name: "CSRFトークン", store: anonymous, method: http.MethodGet, path: "/api/csrf-token", wantStatus: http.StatusOK},
		{name: "現在のユーザー", store: anonymous, method: http.MethodGet, path: "/auth/me", wantStatus: http.StatusOK},
		{name: "掲載詳細", store: anonymous, method: http.MethodGet, path: "/api/services/boarding/" + uuid.NewString(), wantStatus: http.StatusOK},
		{name: "保護ページ未認証", store: anonymous, method: http.MethodGet, path: "/seller-dashboard", wantStatus: http.StatusFound, wantLocation: "/login"},
		{name: "保護ページ認証済み", store: signedIn, method: http.MethodGet, path: "/profile", wantStatus: http.StatusOK},
		{name: "認証必須API未認証", store: anonymous, method: http.MethodGet, path: "/api/bookings", wantStatus: http.StatusUnauthorized},
		{name: "CSRFトークンなしのPOST", store: signedIn, method: http.MethodPost, path: "/api/bookings", wantStatus: http.StatusForbidden},
		{
			name: "削除エンドポイントはCSRF不要", store: anonymous, method: http.MethodPost, path: "/functions/delete-account",
			header: map[string]string{"Authorization": "Bearer token"}, wantStatus: http.StatusOK,
		},
		{name: "管理画面未ログイン", store: anonymous, method: http.MethodGet, path: "/admin/dashboard", wantStatus: http.StatusUnauthorized},
		{
			name: "プリフライト", store: anonymous, method: http.MethodOptions, path: "/auth/signin",
			header: map[string]string{"Origin": "http://localhost:3000", "Access-Control-Request-Method": "POST"}, wantStatus: http.StatusNoContent,
		},
		{name: "存在しないルート", store: anonymous, method: http.MethodGet, path: "/api/unknown", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := createTestRouter(t, tt.store, nil)

			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: tt.store.ID()})
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("%s %s status = %d, want %d: %s", tt.method, tt.path, w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantLocation != "" && w.Header().Get("Location") != tt.wantLocation {
				t.Errorf("Location = %q, want %q", w.Header().Get("Location"), tt.wantLocation)
			}
		})
	}
}

func TestRouter_HealthCheckFailure(t *testing.T) {
	router := createTestRouter(t, settledStore("b1", nil), pingFunc(func(ctx context.Context) error {
		return errors.New("connection refused")
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestRouter_SecurityHeadersOnEveryResponse(t *testing.T) {
	router := createTestRouter(t, settledStore("b1", nil), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestRouter_MetricsRecordsStatus(t *testing.T) {
	router := createTestRouter(t, settledStore("b1", nil), nil)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(w.Body.String(), `smartpaw_http_status_total{status_code="200"}`) {
		t.Errorf("metrics output missing http status counter:\n%s", w.Body.String())
	}
}
