// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/smartpaw/internal/auth"
	"github.com/hitoshi/smartpaw/internal/middleware"
	"github.com/hitoshi/smartpaw/internal/model"
	"github.com/hitoshi/smartpaw/internal/session"
	"github.com/hitoshi/smartpaw/internal/validation"
)

// pkceVerifierCookie はGoogleサインインのcode_verifierをコールバックまで保持するCookie。
const pkceVerifierCookie = "smartpaw_pkce"

// AuthCoordinator は認証ハンドラーが必要とするコーディネーターのインターフェース。
// auth.Coordinatorが実装する。
type AuthCoordinator interface {
	SignUp(ctx context.Context, store *session.Store, input validation.UserInput) (*auth.Result, error)
	SignIn(ctx context.Context, store *session.Store, email, password string) (*auth.Result, error)
	StartGoogle(redirectTo string) auth.OAuthStart
	CompleteGoogle(ctx context.Context, store *session.Store, code, verifier string) (*auth.Result, error)
	SignOut(ctx context.Context, store *session.Store) *auth.Result
	DeleteAccount(ctx context.Context, store *session.Store) (*auth.Result, error)
}

// ProfileSyncer はサインイン後にprofilesテーブルを同期する。
// listing.Serviceが実装する。
type ProfileSyncer interface {
	SyncProfile(ctx context.Context, user *model.User) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL      string // フロントエンドのURL。OAuthコールバック後の遷移先の基点
	CallbackURL  string // IDプロバイダーからのOAuthコールバック先
	CookieDomain string
	CookieSecure bool
	// SessionMaxAge はサインイン時に振り直したセッションCookieの有効期間
	SessionMaxAge time.Duration
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	coordinator AuthCoordinator
	profiles    ProfileSyncer
	config      AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
// profilesがnilの場合はプロフィールを同期しない。
func NewAuthHandler(coordinator AuthCoordinator, profiles ProfileSyncer, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		coordinator: coordinator,
		profiles:    profiles,
		config:      config,
	}
}

type signUpRequest struct {
	FullName     string         `json:"full_name"`
	Email        string         `json:"email"`
	Password     string         `json:"password"`
	UserType     model.UserType `json:"user_type"`
	BusinessName string         `json:"business_name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	FullName     string         `json:"full_name"`
	UserType     model.UserType `json:"user_type"`
	BusinessName string         `json:"business_name,omitempty"`
}

// authResponse は認証アクションのAPIレスポンス。
// Redirectが空の場合、クライアントは遷移しない。
type authResponse struct {
	Redirect string        `json:"redirect,omitempty"`
	Notice   string        `json:"notice,omitempty"`
	User     *userResponse `json:"user,omitempty"`
}

// meResponse は現在のセッション状態のAPIレスポンス。
type meResponse struct {
	Authenticated bool          `json:"authenticated"`
	State         session.State `json:"state"`
	User          *userResponse `json:"user,omitempty"`
}

func toUserResponse(u *model.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{
		ID:           u.ID.String(),
		Email:        u.Email,
		FullName:     u.Metadata.FullName,
		UserType:     u.Metadata.UserType,
		BusinessName: u.Metadata.BusinessName,
	}
}

func toAuthResponse(res *auth.Result) authResponse {
	resp := authResponse{
		Redirect: res.Redirect,
		Notice:   res.Notice,
	}
	if res.Session != nil {
		resp.User = toUserResponse(res.Session.User)
	}
	return resp
}

// SignUp はサインアップを処理する。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	store := storeOrFail(w, r)
	if store == nil {
		return
	}

	var req signUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.coordinator.SignUp(r.Context(), store, validation.UserInput{
		FullName:     req.FullName,
		Email:        req.Email,
		Password:     req.Password,
		UserType:     req.UserType,
		BusinessName: req.BusinessName,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusAccepted // メール確認待ち
	if res.Session != nil {
		status = http.StatusCreated
		h.signedIn(w, r, store, res)
	}
	writeJSON(w, status, toAuthResponse(res))
}

// SignIn はメールアドレスとパスワードでのサインインを処理する。
// POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	store := storeOrFail(w, r)
	if store == nil {
		return
	}

	var req signInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.coordinator.SignIn(r.Context(), store, req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.signedIn(w, r, store, res)
	writeJSON(w, http.StatusOK, toAuthResponse(res))
}

// GoogleLogin はGoogleサインインを開始する。
// GET /auth/google/login
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	start := h.coordinator.StartGoogle(h.config.CallbackURL)

	// code_verifierはコールバックまでCookieで保持する
	http.SetCookie(w, &http.Cookie{
		Name:     pkceVerifierCookie,
		Value:    start.Verifier,
		Path:     "/auth/google",
		Domain:   h.config.CookieDomain,
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, start.URL, http.StatusTemporaryRedirect)
}

// GoogleCallback はGoogleサインインのコールバックを処理する。
// 成功時も失敗時もフロントエンドへリダイレクトする。
// GET /auth/google/callback?code=xxx
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	store := storeOrFail(w, r)
	if store == nil {
		return
	}

	var verifier string
	if cookie, err := r.Cookie(pkceVerifierCookie); err == nil {
		verifier = cookie.Value
	}

	// verifierクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     pkceVerifierCookie,
		Value:    "",
		Path:     "/auth/google",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	if providerErr := r.URL.Query().Get("error_description"); providerErr != "" {
		slog.Warn("oauth provider returned an error",
			slog.String("error", providerErr),
		)
		http.Redirect(w, r, h.loginErrorURL(model.ErrCodeProviderError), http.StatusFound)
		return
	}

	res, err := h.coordinator.CompleteGoogle(r.Context(), store, r.URL.Query().Get("code"), verifier)
	if err != nil {
		slog.Warn("oauth callback failed", slog.String("error", err.Error()))
		code := model.ErrCodeProviderError
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			code = apiErr.Code
		}
		http.Redirect(w, r, h.loginErrorURL(code), http.StatusFound)
		return
	}

	h.signedIn(w, r, store, res)
	http.Redirect(w, r, h.frontendURL(res.Redirect), http.StatusFound)
}

// SignOut はサインアウトを処理する。
// プロバイダーの結果に関わらず成功する。
// POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	store := storeOrFail(w, r)
	if store == nil {
		return
	}

	res := h.coordinator.SignOut(r.Context(), store)
	writeJSON(w, http.StatusOK, toAuthResponse(res))
}

// Me は現在のセッション状態を返す。未認証でも200を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	store := storeOrFail(w, r)
	if store == nil {
		return
	}

	snap := store.Snapshot()
	writeJSON(w, http.StatusOK, meResponse{
		Authenticated: snap.Authenticated(),
		State:         snap.State,
		User:          toUserResponse(snap.User),
	})
}

// DeleteAccount は現在のユーザーのアカウントを削除する。
// DELETE /api/account
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	store := storeOrFail(w, r)
	if store == nil {
		return
	}

	res, err := h.coordinator.DeleteAccount(r.Context(), store)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(res))
}

// signedIn はサインインで振り直されたブラウザセッションIDをCookieに設定し、profilesを同期する。
// レスポンスを書き込む前に呼ぶ。
func (h *AuthHandler) signedIn(w http.ResponseWriter, r *http.Request, store *session.Store, res *auth.Result) {
	if res == nil || res.Session == nil {
		return
	}

	if cookie, err := r.Cookie(middleware.SessionCookieName); err != nil || cookie.Value != store.ID() {
		middleware.SetSessionCookie(w, store.ID(), h.config.SessionMaxAge, middleware.SessionConfig{
			CookieSecure: h.config.CookieSecure,
			CookieDomain: h.config.CookieDomain,
		})
	}

	h.syncProfile(r.Context(), res.Session.User)
}

// syncProfile は認証済みになったユーザーのprofilesを同期する。
// 失敗してもサインイン自体は成功として扱う。
func (h *AuthHandler) syncProfile(ctx context.Context, user *model.User) {
	if h.profiles == nil || user == nil {
		return
	}
	if err := h.profiles.SyncProfile(ctx, user); err != nil {
		slog.Warn("failed to sync profile",
			slog.String("user_id", user.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// frontendURL はフロントエンドのパスを絶対URLにする。
func (h *AuthHandler) frontendURL(path string) string {
	if path == "" {
		path = auth.PathHome
	}
	return strings.TrimRight(h.config.BaseURL, "/") + path
}

// loginErrorURL はエラーコード付きのログインページURLを返す。
func (h *AuthHandler) loginErrorURL(code string) string {
	return h.frontendURL(auth.PathLogin) + "?error=" + url.QueryEscape(code)
}
