package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// corsPreflightMaxAge はプリフライト結果をブラウザがキャッシュする秒数。
const corsPreflightMaxAge = 24 * 60 * 60

var (
	corsAllowedMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsAllowedHeaders = strings.Join([]string{"Content-Type", "Authorization", csrfHeaderName}, ", ")
)

// NewCORSMiddleware は許可したオリジンからのクレデンシャル付きリクエストを受け付けるCORSミドルウェアを返す。
//
// リクエストのOriginが許可リストにある場合のみ、そのオリジンをAccess-Control-Allow-Originに返す。
// 許可したオリジンからのOPTIONSはプリフライトとして204で応答する。
// 空のオリジンは無視し、許可リストが空ならCORSヘッダーを付与しない。
func NewCORSMiddleware(allowedOrigins ...string) func(next http.Handler) http.Handler {
	origins := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSuffix(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}

	return func(next http.Handler) http.Handler {
		if len(origins) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if origin == "" || !slices.Contains(origins, origin) {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
				h.Set("Access-Control-Max-Age", strconv.Itoa(corsPreflightMaxAge))
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
