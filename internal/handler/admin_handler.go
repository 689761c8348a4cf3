package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/smartpaw/internal/admin"
	"github.com/hitoshi/smartpaw/internal/model"
)

// AdminGuard は管理ハンドラーが必要とするガードのインターフェース。
// admin.Guardが実装する。scopeはブラウザセッションID。
type AdminGuard interface {
	Login(ctx context.Context, scope, username, password string) (*model.AdminSession, error)
	Current(ctx context.Context, scope string) (*model.AdminSession, error)
	Logout(ctx context.Context, scope string) error
}

// AdminHandler はデモ用管理画面のHTTPハンドラー。
type AdminHandler struct {
	guard AdminGuard
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(guard AdminGuard) *AdminHandler {
	return &AdminHandler{guard: guard}
}

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type adminDashboardResponse struct {
	Session *model.AdminSession  `json:"session"`
	Stats   admin.DashboardStats `json:"stats"`
}

// Login は管理画面にログインする。
// POST /admin/login
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	store := storeOrFail(w, r)
	if store == nil {
		return
	}

	var req adminLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := h.guard.Login(r.Context(), store.ID(), req.Username, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// Logout は管理画面からログアウトする。
// POST /admin/logout
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	store := storeOrFail(w, r)
	if store == nil {
		return
	}

	if err := h.guard.Logout(r.Context(), store.ID()); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Dashboard はデモ用の集計値を返す。有効な管理セッションが必要。
// GET /admin/dashboard
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	store := storeOrFail(w, r)
	if store == nil {
		return
	}

	sess, err := h.guard.Current(r.Context(), store.ID())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if sess == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAdminUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, adminDashboardResponse{
		Session: sess,
		Stats:   admin.MockDashboard(),
	})
}
