package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/smartpaw/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの本文。
// フロントエンドはcategoryで表示を切り替え、actionを利用者への案内に使う。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// ErrCodeInvalidRequest はリクエストボディを解析できなかった場合のエラーコード。
const ErrCodeInvalidRequest = "INVALID_REQUEST"

// errCodeSessionPending はルートガードがセッションの確定を待ちきれなかった場合のエラーコード。
const errCodeSessionPending = "SESSION_PENDING"

// StatusForAPIError はAPIErrorのコードに対応するHTTPステータスを返す。
// 未知のコードは500とする。
func StatusForAPIError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeInvalidServiceKind, model.ErrCodeProviderError, ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthorized, model.ErrCodeAdminUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeEmailNotConfirmed, model.ErrCodeImageURLBlocked:
		return http.StatusForbidden
	case model.ErrCodeListingNotFound, model.ErrCodeProviderNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeActionInProgress:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeDeletionFailed:
		return http.StatusBadGateway
	case errCodeSessionPending:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse はAPIErrorを指定したステータスで書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}); err != nil {
		slog.Warn("failed to encode error response", slog.String("error", err.Error()))
	}
}

// WriteAPIError はコードから決まるステータスでAPIErrorを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusForAPIError(apiErr), apiErr)
}

// WriteTooManyRequests はRetry-Afterヘッダー付きの429を書き込む。
// retryAfterは秒に切り上げ、最低1秒とする。
func WriteTooManyRequests(w http.ResponseWriter, retryAfter time.Duration, apiErr *model.APIError) {
	sec := int(math.Ceil(retryAfter.Seconds()))
	if sec < 1 {
		sec = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(sec))
	WriteErrorResponse(w, http.StatusTooManyRequests, apiErr)
}

// WriteInternalServerError は内部エラーの汎用レスポンスを書き込む。
// 原因はログにのみ記録する。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

func sessionPendingError() *model.APIError {
	return &model.APIError{
		Code:     errCodeSessionPending,
		Message:  "Checking your session took too long.",
		Category: "system",
		Action:   "ページを再読み込みしてください。",
	}
}
