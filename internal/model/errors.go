// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, rate_limit, listing, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeEmailNotConfirmed  = "EMAIL_NOT_CONFIRMED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeProviderError      = "PROVIDER_ERROR"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeActionInProgress   = "AUTH_ACTION_IN_PROGRESS"
	ErrCodeDeletionFailed     = "ACCOUNT_DELETION_FAILED"
	ErrCodeListingNotFound    = "LISTING_NOT_FOUND"
	ErrCodeProviderNotFound   = "PROVIDER_PROFILE_NOT_FOUND"
	ErrCodeInvalidServiceKind = "INVALID_SERVICE_KIND"
	ErrCodeImageURLBlocked    = "IMAGE_URL_BLOCKED"
	ErrCodeAdminUnauthorized  = "ADMIN_UNAUTHORIZED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
)

// NewValidationError は入力検証エラーを生成する。
// 複数の項目エラーは1つのメッセージに結合する。
func NewValidationError(errs ...string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  strings.Join(errs, " "),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewRateLimitedError は試行回数超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many attempts. Please try again in 15 minutes.",
		Category: "rate_limit",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewEmailNotConfirmedError はメール未確認のままサインインしようとした場合のエラーを生成する。
func NewEmailNotConfirmedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotConfirmed,
		Message:  "Please confirm your email address before signing in. Check your inbox for the confirmation link.",
		Category: "auth",
		Action:   "確認メールのリンクを開いてから再度サインインしてください。",
	}
}

// NewInvalidCredentialsError は認証情報の誤りを表すエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password. Please check your credentials and try again.",
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewProviderError はIDプロバイダーから返されたメッセージをそのまま表示するエラーを生成する。
func NewProviderError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderError,
		Message:  message,
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "You must be signed in to do that.",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewActionInProgressError は同一セッションで認証操作が実行中の場合のエラーを生成する。
func NewActionInProgressError() *APIError {
	return &APIError{
		Code:     ErrCodeActionInProgress,
		Message:  "Another request is already in progress.",
		Category: "auth",
		Action:   "処理が完了するまでお待ちください。",
	}
}

// DefaultDeletionFailedMessage は削除失敗の理由が不明な場合のメッセージ。
const DefaultDeletionFailedMessage = "Failed to delete account. Please try again later."

// NewDeletionFailedError はアカウント削除失敗エラーを生成する。
func NewDeletionFailedError(message string) *APIError {
	if message == "" {
		message = DefaultDeletionFailedMessage
	}
	return &APIError{
		Code:     ErrCodeDeletionFailed,
		Message:  message,
		Category: "auth",
		Action:   "アカウントは削除されていません。しばらく待ってから再度お試しください。",
	}
}

// NewListingNotFoundError はサービス掲載が見つからない場合のエラーを生成する。
func NewListingNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeListingNotFound,
		Message:  fmt.Sprintf("Service not found: %s", id),
		Category: "listing",
		Action:   "サービスIDを確認してください。",
	}
}

// NewProviderNotFoundError は事業者プロフィール未登録エラーを生成する。
func NewProviderNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderNotFound,
		Message:  "Please complete your business profile first.",
		Category: "listing",
		Action:   "事業者プロフィールを登録してください。",
	}
}

// NewInvalidServiceKindError は不正なサービス種別エラーを生成する。
func NewInvalidServiceKindError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidServiceKind,
		Message:  fmt.Sprintf("Unknown service type: %s", kind),
		Category: "validation",
		Action:   "boarding、grooming、monitoring のいずれかを指定してください。",
	}
}

// NewImageURLBlockedError は画像URLがセキュリティポリシーで拒否された場合のエラーを生成する。
func NewImageURLBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeImageURLBlocked,
		Message:  "The image URL is not allowed.",
		Category: "validation",
		Action:   "公開されているhttps://の画像URLを指定してください。",
	}
}

// NewAdminUnauthorizedError は管理画面の認証失敗エラーを生成する。
func NewAdminUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeAdminUnauthorized,
		Message:  "Invalid admin credentials.",
		Category: "auth",
		Action:   "ユーザー名とパスワードを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
