// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/smartpaw/internal/model"
)

// SessionRepository はブラウザセッションの永続化インターフェース。
type SessionRepository interface {
	// FindByID は指定IDのセッションを取得する。期限切れまたは存在しない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.BrowserSession, error)
	// Upsert はセッションを作成または上書きする。
	Upsert(ctx context.Context, session *model.BrowserSession) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired はbefore時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// ProfileRepository はユーザープロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	// Upsert はプロフィールを作成または更新する。
	Upsert(ctx context.Context, profile *model.Profile) error
}

// ProviderRepository は事業者プロフィールの永続化インターフェース。
type ProviderRepository interface {
	// FindByUserID はユーザーの事業者プロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID uuid.UUID) (*model.ServiceProvider, error)
	// Upsert は事業者プロフィールを作成または更新する。user_idで一意。
	Upsert(ctx context.Context, provider *model.ServiceProvider) error
}

// ListingRepository はサービス掲載の永続化インターフェース。
// 種別ごとに別テーブルへ保存する。
type ListingRepository interface {
	// Create は掲載を作成する。
	Create(ctx context.Context, listing *model.Listing) error
	// FindByID は指定種別・IDの掲載を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, kind model.ServiceKind, id uuid.UUID) (*model.Listing, error)
	// ListByKind は指定種別の掲載を新しい順に返す。
	ListByKind(ctx context.Context, kind model.ServiceKind, limit int) ([]*model.Listing, error)
	// ListByProvider は事業者の全種別の掲載を新しい順に返す。
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*model.Listing, error)
}

// BookingRepository は予約の永続化インターフェース。
type BookingRepository interface {
	// Create は予約を作成する。
	Create(ctx context.Context, booking *model.Booking) error
	// ListByUserID はユーザーの予約を新しい順に返す。
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*model.Booking, error)
}

// AccountRepository はアカウント削除時のデータ一括削除インターフェース。
type AccountRepository interface {
	// DeleteUserData はユーザーに紐づく行を1トランザクションで削除する。
	// beforeCommitがエラーを返した場合はロールバックする。
	DeleteUserData(ctx context.Context, userID uuid.UUID, beforeCommit func(ctx context.Context) error) (*model.DeletionSummary, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
