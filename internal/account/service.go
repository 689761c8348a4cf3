// Package account はアカウント削除（退会）のサーバー側処理と、その呼び出し側クライアントを提供する。
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/smartpaw/internal/model"
)

// TokenVerifier はアクセストークンを検証し、持ち主を返す。
// identity.Clientが実装する。
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, token string) (*model.User, error)
}

// IdentityDeleter はIDプロバイダーの管理APIでユーザーを削除する。
// identity.Clientが実装する。
type IdentityDeleter interface {
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

// Repository はユーザーに紐づく行を削除する。
// repository.AccountRepositoryの部分集合として定義する。
type Repository interface {
	DeleteUserData(ctx context.Context, userID uuid.UUID, beforeCommit func(ctx context.Context) error) (*model.DeletionSummary, error)
}

// Service はアカウント削除のサービス層。
type Service struct {
	verifier TokenVerifier
	identity IdentityDeleter
	repo     Repository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(verifier TokenVerifier, identity IdentityDeleter, repo Repository) *Service {
	return &Service{
		verifier: verifier,
		identity: identity,
		repo:     repo,
	}
}

// Withdraw はアクセストークンの持ち主のアカウントを削除する。
//
// 削除順序: bookings → 掲載（3テーブル） → service_providers → profiles → sessions を
// 1トランザクションで削除し、コミット直前にIDプロバイダーのユーザーを削除する。
// IDプロバイダーの削除に失敗した場合はロールバックし、アカウントはそのまま残る。
func (s *Service) Withdraw(ctx context.Context, accessToken string) error {
	user, err := s.verifier.VerifyAccessToken(ctx, accessToken)
	if err != nil {
		slog.Info("アカウント削除のトークン検証に失敗しました",
			slog.String("error", err.Error()),
		)
		return model.NewUnauthorizedError()
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	userID := user.ID.String()
	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	identityDeleted := false
	summary, err := s.repo.DeleteUserData(ctx, user.ID, func(ctx context.Context) error {
		if err := s.identity.DeleteUser(ctx, user.ID); err != nil {
			return fmt.Errorf("IDプロバイダーのユーザー削除に失敗しました: %w", err)
		}
		identityDeleted = true
		return nil
	})
	if err != nil {
		if identityDeleted {
			// IDは削除済みだがコミットに失敗した。残った行は手動での削除が必要。
			slog.Error("退会処理のコミットに失敗しました。データが残っています",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		} else {
			slog.Error("退会処理に失敗しました",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}

		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return apiErr
		}
		return model.NewDeletionFailedError(model.DefaultDeletionFailedMessage)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
		slog.Int64("bookings", summary.Bookings),
		slog.Int64("listings", summary.Listings),
		slog.Int64("providers", summary.Providers),
		slog.Int64("profiles", summary.Profiles),
		slog.Int64("sessions", summary.Sessions),
	)

	return nil
}
