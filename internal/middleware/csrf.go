package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/hitoshi/smartpaw/internal/model"
)

const (
	// csrfCookieName はCSRFトークンを保持するCookieの名前。
	// フロントエンドがヘッダーに載せるため、HttpOnlyにしない。
	csrfCookieName = "csrf_token"

	// csrfHeaderName はCSRFトークンを送るリクエストヘッダー名。
	csrfHeaderName = "X-CSRF-Token"

	csrfTokenBytes   = 32
	csrfCookieMaxAge = 24 * 60 * 60
)

// CSRF検証の失敗理由。ログにのみ出力する。
const (
	csrfReasonMissingCookie = "missing_cookie"
	csrfReasonMissingHeader = "missing_header"
	csrfReasonMismatch      = "token_mismatch"
	csrfReasonOrigin        = "untrusted_origin"
)

// CSRFConfig はCSRFミドルウェアの設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
	// ExemptPaths はCookieではなくBearerトークンで認証するため検証を省略するパス。
	ExemptPaths []string
	// TrustedOrigins は状態変更リクエストのOriginヘッダーとして受け付けるオリジン。
	// リクエスト先と同じホストのOriginは常に受け付ける。
	TrustedOrigins []string
}

// NewCSRFMiddleware はダブルサブミットCookie方式のCSRF対策ミドルウェアを返す。
//
// 安全なメソッドは検証せず、トークンCookieがなければ発行する。
// 状態変更メソッドはOriginヘッダーを確認したうえで、CookieとX-CSRF-Tokenヘッダーの一致を要求する。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				if _, ok := csrfCookieToken(r); !ok {
					if _, err := issueCSRFToken(w, config); err != nil {
						slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
					}
				}
				next.ServeHTTP(w, r)
				return
			}

			if slices.Contains(config.ExemptPaths, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if reason := config.verify(r); reason != "" {
				attrs := []any{
					slog.String("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				}
				if store, ok := StoreFromContext(r.Context()); ok {
					attrs = append(attrs, slog.String("browser_id", shortID(store.ID())))
				}
				slog.Warn("CSRF validation failed", attrs...)
				WriteErrorResponse(w, http.StatusForbidden, csrfError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// verify は状態変更リクエストを検証し、失敗理由を返す。成功時は空文字列。
func (c CSRFConfig) verify(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" && !c.trustsOrigin(origin, r.Host) {
		return csrfReasonOrigin
	}

	cookieToken, ok := csrfCookieToken(r)
	if !ok {
		return csrfReasonMissingCookie
	}
	headerToken := r.Header.Get(csrfHeaderName)
	if headerToken == "" {
		return csrfReasonMissingHeader
	}
	if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) != 1 {
		return csrfReasonMismatch
	}
	return ""
}

// trustsOrigin はOriginが設定済みのオリジンかリクエスト先と同じホストかを判定する。
func (c CSRFConfig) trustsOrigin(origin, host string) bool {
	for _, trusted := range c.TrustedOrigins {
		if trusted != "" && strings.EqualFold(strings.TrimSuffix(trusted, "/"), origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host != "" && strings.EqualFold(u.Host, host)
}

// NewCSRFTokenHandler はCSRFトークン取得エンドポイントのハンドラーを返す。
// GET /api/csrf-token
// トークンCookieがあればその値を返し、なければ新たに発行する。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := csrfCookieToken(r)
		if !ok {
			var err error
			token, err = issueCSRFToken(w, config)
			if err != nil {
				slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
				WriteInternalServerError(w)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	})
}

func csrfCookieToken(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// issueCSRFToken は新しいトークンを生成してCookieに設定する。
func issueCSRFToken(w http.ResponseWriter, config CSRFConfig) (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   csrfCookieMaxAge,
		HttpOnly: false,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

func csrfError() *model.APIError {
	return &model.APIError{
		Code:     "CSRF_VALIDATION_FAILED",
		Message:  "CSRF token validation failed",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
