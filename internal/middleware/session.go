// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/smartpaw/internal/model"
	"github.com/hitoshi/smartpaw/internal/session"
)

// SessionCookieName はブラウザセッションIDを保持するCookieの名前。
const SessionCookieName = "smartpaw_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// storeContextKey はリクエストコンテキストにセッションStoreを格納するためのキー。
var storeContextKey = contextKey("session_store")

// SessionLoader はブラウザセッションIDからStoreを復元する。
// session.Managerが実装する。
type SessionLoader interface {
	Load(ctx context.Context, browserID string) (*session.Store, error)
	MaxAge() time.Duration
}

// SessionConfig はセッションCookieの設定。
type SessionConfig struct {
	CookieSecure bool
	CookieDomain string
}

// NewSessionMiddleware はCookieのブラウザセッションIDからStoreを復元し、
// リクエストコンテキストに注入するミドルウェアを返す。
// 未認証のリクエストも通過させる。認証必須のルートにはNewRequireAuthMiddlewareを併用する。
func NewSessionMiddleware(loader SessionLoader, config SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var browserID string
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				browserID = cookie.Value
			}

			store, err := loader.Load(r.Context(), browserID)
			if err != nil {
				slog.Error("failed to load session",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			attachStoreToLog(r.Context(), store)

			// 新規発行したIDのみCookieに設定する
			if store.ID() != browserID {
				SetSessionCookie(w, store.ID(), loader.MaxAge(), config)
			}

			next.ServeHTTP(w, r.WithContext(ContextWithStore(r.Context(), store)))
		})
	}
}

// SetSessionCookie はブラウザセッションIDのCookieを設定する。
func SetSessionCookie(w http.ResponseWriter, id string, maxAge time.Duration, config SessionConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// NewRequireAuthMiddleware は認証済みのStoreがないリクエストに401を返すミドルウェアを返す。
// NewSessionMiddlewareの後に配置する。
func NewRequireAuthMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store, ok := StoreFromContext(r.Context())
			if !ok || !store.Snapshot().Authenticated() {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// StoreFromContext はリクエストコンテキストからStoreを取得する。
func StoreFromContext(ctx context.Context) (*session.Store, bool) {
	store, ok := ctx.Value(storeContextKey).(*session.Store)
	return store, ok && store != nil
}

// ContextWithStore はコンテキストにStoreを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithStore(ctx context.Context, store *session.Store) context.Context {
	return context.WithValue(ctx, storeContextKey, store)
}

// UserFromContext は認証済みユーザーを取得する。
func UserFromContext(ctx context.Context) (*model.User, error) {
	store, ok := StoreFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("session store not found in context")
	}
	snap := store.Snapshot()
	if !snap.Authenticated() || snap.User == nil {
		return nil, fmt.Errorf("user not authenticated")
	}
	return snap.User, nil
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return "", err
	}
	return user.ID.String(), nil
}
