package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/smartpaw/internal/middleware"
	"github.com/hitoshi/smartpaw/internal/model"
)

// AccountWithdrawer はアクセストークンの持ち主のアカウントを削除する。
// account.Serviceが実装する。
type AccountWithdrawer interface {
	Withdraw(ctx context.Context, accessToken string) error
}

// AccountHandler はアカウント削除エンドポイントのHTTPハンドラー。
// Cookieのブラウザセッションではなく、Bearerトークンで認証する。
type AccountHandler struct {
	service AccountWithdrawer
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountWithdrawer) *AccountHandler {
	return &AccountHandler{service: service}
}

// DeleteAccount はアカウントを削除し、{success, error}を返す。
// POST /functions/delete-account
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, model.DeleteAccountResponse{
			Error: "Missing authorization header",
		})
		return
	}

	if err := h.service.Withdraw(r.Context(), token); err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			slog.Error("account deletion failed", slog.String("error", err.Error()))
			apiErr = model.NewDeletionFailedError(model.DefaultDeletionFailedMessage)
		}
		writeJSON(w, middleware.StatusForAPIError(apiErr), model.DeleteAccountResponse{
			Error: apiErr.Message,
		})
		return
	}

	writeJSON(w, http.StatusOK, model.DeleteAccountResponse{Success: true})
}

// bearerToken はAuthorizationヘッダーのBearerトークンを返す。
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
