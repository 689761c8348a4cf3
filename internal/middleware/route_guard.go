package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/smartpaw/internal/auth"
	"github.com/hitoshi/smartpaw/internal/session"
)

// ProtectedPages は未認証時にログインページへリダイレクトするページ。
var ProtectedPages = []string{"/seller-dashboard", "/profile"}

// GuardRedirect は保護ページのリダイレクト先を返す。空文字列はそのまま表示することを表す。
// 初回取得中はセッションの有無が未確定のため、リダイレクトしない。
func GuardRedirect(state session.State, path string, protected []string) string {
	if !isProtected(path, protected) {
		return ""
	}
	if state == session.StateUnauthenticated {
		return auth.PathLogin
	}
	return ""
}

func isProtected(path string, protected []string) bool {
	for _, p := range protected {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// NewRouteGuard は保護ページへの未認証アクセスを/loginへリダイレクトするミドルウェアを返す。
// Storeが初回取得中の場合はsettleTimeoutまで確定を待ってから判定する。
func NewRouteGuard(protected []string, settleTimeout time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isProtected(r.URL.Path, protected) {
				next.ServeHTTP(w, r)
				return
			}

			store, ok := StoreFromContext(r.Context())
			if !ok {
				http.Redirect(w, r, auth.PathLogin, http.StatusFound)
				return
			}

			state := store.State()
			if store.IsLoading() {
				ctx, cancel := context.WithTimeout(r.Context(), settleTimeout)
				snap, err := store.WaitSettled(ctx)
				cancel()
				if err != nil {
					slog.Warn("session did not settle before guard timeout",
						slog.String("path", r.URL.Path),
					)
					WriteAPIError(w, sessionPendingError())
					return
				}
				state = snap.State
			}

			if redirect := GuardRedirect(state, r.URL.Path, protected); redirect != "" {
				http.Redirect(w, r, redirect, http.StatusFound)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
