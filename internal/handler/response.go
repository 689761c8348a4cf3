package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/smartpaw/internal/middleware"
	"github.com/hitoshi/smartpaw/internal/model"
	"github.com/hitoshi/smartpaw/internal/session"
)

// maxJSONBodySize はJSONリクエストボディの上限サイズ。
const maxJSONBodySize = 1 << 20

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// invalidRequestError はリクエストボディの解析失敗を表すエラー。
func invalidRequestError() *model.APIError {
	return &model.APIError{
		Code:     middleware.ErrCodeInvalidRequest,
		Message:  "The request body could not be parsed.",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// decodeJSON はリクエストボディをdstにデコードする。
// 失敗した場合は400を書き込み、falseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodySize))
	if err := dec.Decode(dst); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return false
	}
	return true
}

// handleServiceError はサービス層のエラーをレスポンスに変換する。
// APIError以外は内部エラーとしてログに記録する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// storeOrFail はリクエストコンテキストからセッションStoreを取得する。
// 見つからない場合は500を書き込み、nilを返す。
func storeOrFail(w http.ResponseWriter, r *http.Request) *session.Store {
	store, ok := middleware.StoreFromContext(r.Context())
	if !ok {
		slog.Error("session store missing from request context",
			slog.String("path", r.URL.Path),
		)
		middleware.WriteInternalServerError(w)
		return nil
	}
	return store
}
