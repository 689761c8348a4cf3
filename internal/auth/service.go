// Package auth は認証アクションと、その実行順序・画面遷移を決める認証コーディネーターを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/oauth2"

	"github.com/hitoshi/smartpaw/internal/identity"
	"github.com/hitoshi/smartpaw/internal/model"
	"github.com/hitoshi/smartpaw/internal/validation"
)

// サインイン時に言い換えるIDプロバイダーのエラーメッセージ（大文字小文字を区別する部分一致）。
const (
	providerMsgEmailNotConfirmed  = "Email not confirmed"
	providerMsgInvalidCredentials = "Invalid login credentials"
)

// GoogleProvider はGoogleサインインで使用するIdP名。
const GoogleProvider = "google"

// Provider はIDプロバイダーのインターフェース。
// identity.Clientが実装する。
type Provider interface {
	SignUp(ctx context.Context, email, password string, metadata model.UserMetadata) (*identity.SignUpResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*model.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	AuthorizeURL(provider, redirectTo, challenge string) string
}

// AccountDeleter はサーバー側のアカウント削除エンドポイントを呼び出す。
// account.Clientが実装する。
type AccountDeleter interface {
	DeleteAccount(ctx context.Context, accessToken string) error
}

// OAuthStart はOAuthサインイン開始時の情報。
// VerifierはコールバックまでサーバーがCookieで保持する。
type OAuthStart struct {
	URL      string
	Verifier string
}

// Service は認証アクションを提供する。
// どのアクションもIDプロバイダーを呼ぶ前にローカルの前提条件を検証する。
type Service struct {
	provider Provider
	deleter  AccountDeleter
}

// NewService はServiceを生成する。
func NewService(provider Provider, deleter AccountDeleter) *Service {
	return &Service{
		provider: provider,
		deleter:  deleter,
	}
}

// SignUp はアカウントを作成する。
// 結果のSessionがnilの場合はメール確認待ちで、エラーではない。
func (s *Service) SignUp(ctx context.Context, email, password string, metadata model.UserMetadata) (*identity.SignUpResult, error) {
	if err := checkSignUp(email, password, metadata); err != nil {
		return nil, err
	}

	result, err := s.provider.SignUp(ctx, email, password, metadata)
	if err != nil {
		return nil, providerError(err)
	}
	return result, nil
}

// checkSignUp はサインアップの最低限の前提条件を検証する。
func checkSignUp(email, password string, metadata model.UserMetadata) error {
	var errs []string
	if strings.TrimSpace(email) == "" || password == "" || strings.TrimSpace(metadata.FullName) == "" {
		errs = append(errs, "Email, password and full name are required")
	}
	if password != "" && len([]rune(password)) < validation.MinPasswordLength {
		errs = append(errs, "Password must be at least 6 characters long")
	}
	if metadata.UserType == model.UserTypeServiceProvider && strings.TrimSpace(metadata.BusinessName) == "" {
		errs = append(errs, "Business name is required for service providers")
	}
	if len(errs) > 0 {
		return model.NewValidationError(errs...)
	}
	return nil
}

// SignIn はメールアドレスとパスワードでサインインする。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, model.NewValidationError("Email and password are required")
	}

	session, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, translateSignInError(err)
	}
	return session, nil
}

// translateSignInError は既知のプロバイダーエラーをわかりやすいメッセージに置き換える。
func translateSignInError(err error) error {
	var perr *identity.ProviderError
	if !errors.As(err, &perr) {
		return err
	}
	switch {
	case strings.Contains(perr.Message, providerMsgEmailNotConfirmed):
		return model.NewEmailNotConfirmedError()
	case strings.Contains(perr.Message, providerMsgInvalidCredentials):
		return model.NewInvalidCredentialsError()
	default:
		return model.NewProviderError(perr.Message)
	}
}

// providerError はプロバイダーエラーのメッセージをそのまま利用者向けエラーにする。
func providerError(err error) error {
	var perr *identity.ProviderError
	if errors.As(err, &perr) {
		return model.NewProviderError(perr.Message)
	}
	return err
}

// SignInWithGoogle はGoogleサインインのリダイレクト先を生成する。
// PKCEのcode_verifierを新たに生成し、S256チャレンジを認可URLに含める。
func (s *Service) SignInWithGoogle(redirectTo string) OAuthStart {
	verifier := oauth2.GenerateVerifier()
	return OAuthStart{
		URL:      s.provider.AuthorizeURL(GoogleProvider, redirectTo, oauth2.S256ChallengeFromVerifier(verifier)),
		Verifier: verifier,
	}
}

// CompleteOAuth はOAuthコールバックの認可コードをセッションに交換する。
func (s *Service) CompleteOAuth(ctx context.Context, code, verifier string) (*model.Session, error) {
	if code == "" || verifier == "" {
		return nil, model.NewValidationError("Authorization code is missing")
	}

	session, err := s.provider.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, providerError(err)
	}
	return session, nil
}

// SignOut はプロバイダー側のセッションを失効させる。
// セッションがない場合は何もしない。
func (s *Service) SignOut(ctx context.Context, session *model.Session) error {
	if session == nil || session.AccessToken == "" {
		return nil
	}
	if err := s.provider.SignOut(ctx, session.AccessToken); err != nil {
		return providerError(err)
	}
	return nil
}

// DeleteAccount はサーバー側の削除エンドポイントでアカウントを削除する。
// 呼び出し前にセッションをリフレッシュし、新しいアクセストークンを使用する。
func (s *Service) DeleteAccount(ctx context.Context, session *model.Session) error {
	if session == nil || session.RefreshToken == "" {
		return model.NewUnauthorizedError()
	}

	fresh, err := s.provider.RefreshSession(ctx, session.RefreshToken)
	if err != nil {
		slog.Warn("failed to refresh session before account deletion",
			slog.String("error", err.Error()),
		)
		return model.NewDeletionFailedError("No valid session. Please sign in again.")
	}
	if fresh == nil || fresh.AccessToken == "" {
		return model.NewDeletionFailedError("No valid session. Please sign in again.")
	}

	if err := s.deleter.DeleteAccount(ctx, fresh.AccessToken); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return apiErr
		}
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}
