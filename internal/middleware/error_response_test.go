package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/smartpaw/internal/model"
)

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	return body
}

func TestWriteErrorResponse_統一形式で書き込む(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusForbidden, model.NewEmailNotConfirmedError())

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}

	var raw map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	for _, field := range []string{"code", "message", "category", "action"} {
		if v, _ := raw[field].(string); v == "" {
			t.Errorf("%s が空", field)
		}
	}
	if raw["code"] != model.ErrCodeEmailNotConfirmed {
		t.Errorf("code = %v", raw["code"])
	}
}

func TestStatusForAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  *model.APIError
		want int
	}{
		{"入力エラー", model.NewValidationError("Full name is required"), http.StatusBadRequest},
		{"不正なサービス種別", model.NewInvalidServiceKindError("daycare"), http.StatusBadRequest},
		{"プロバイダーのエラー", model.NewProviderError("User already registered"), http.StatusBadRequest},
		{"リクエスト形式", &model.APIError{Code: ErrCodeInvalidRequest}, http.StatusBadRequest},
		{"資格情報の誤り", model.NewInvalidCredentialsError(), http.StatusUnauthorized},
		{"未認証", model.NewUnauthorizedError(), http.StatusUnauthorized},
		{"管理画面未ログイン", model.NewAdminUnauthorizedError(), http.StatusUnauthorized},
		{"メール未確認", model.NewEmailNotConfirmedError(), http.StatusForbidden},
		{"画像URLの拒否", model.NewImageURLBlockedError(), http.StatusForbidden},
		{"掲載なし", model.NewListingNotFoundError("x"), http.StatusNotFound},
		{"事業者プロフィールなし", model.NewProviderNotFoundError(), http.StatusNotFound},
		{"ユーザーなし", model.NewUserNotFoundError(), http.StatusNotFound},
		{"アクション実行中", model.NewActionInProgressError(), http.StatusConflict},
		{"試行回数超過", model.NewRateLimitedError(), http.StatusTooManyRequests},
		{"削除失敗", model.NewDeletionFailedError("upstream"), http.StatusBadGateway},
		{"セッション確認待ち", sessionPendingError(), http.StatusServiceUnavailable},
		{"未知のコード", &model.APIError{Code: "SOMETHING_ELSE"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusForAPIError(tt.err); got != tt.want {
				t.Errorf("StatusForAPIError(%s) = %d, want %d", tt.err.Code, got, tt.want)
			}
		})
	}
}

func TestWriteAPIError_コードからステータスを決める(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAPIError(w, model.NewActionInProgressError())

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
	if body := decodeErrorBody(t, w); body.Code != model.ErrCodeActionInProgress {
		t.Errorf("code = %q", body.Code)
	}
}

func TestWriteTooManyRequests_RetryAfter(t *testing.T) {
	tests := []struct {
		retryAfter time.Duration
		want       string
	}{
		{0, "1"},
		{300 * time.Millisecond, "1"},
		{1500 * time.Millisecond, "2"},
		{6 * time.Second, "6"},
		{15 * time.Minute, "900"},
	}

	for _, tt := range tests {
		t.Run(tt.retryAfter.String(), func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteTooManyRequests(w, tt.retryAfter, model.NewRateLimitedError())

			if w.Code != http.StatusTooManyRequests {
				t.Errorf("status = %d", w.Code)
			}
			if got := w.Header().Get("Retry-After"); got != tt.want {
				t.Errorf("Retry-After = %q, want %q", got, tt.want)
			}
			if body := decodeErrorBody(t, w); body.Category != "rate_limit" {
				t.Errorf("category = %q, want rate_limit", body.Category)
			}
		})
	}
}

func TestWriteInternalServerError_詳細を返さない(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	body := decodeErrorBody(t, w)
	if body.Code != "INTERNAL_ERROR" || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
	if body.Message != "An internal error occurred." {
		t.Errorf("message = %q", body.Message)
	}
}
