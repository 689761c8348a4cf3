// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/google/uuid"
)

// UserType はアカウント種別を表す。
type UserType string

const (
	// UserTypePetOwner はサービスを利用する飼い主。
	UserTypePetOwner UserType = "pet-owner"
	// UserTypeServiceProvider はサービスを掲載する事業者。
	UserTypeServiceProvider UserType = "service-provider"
)

// Valid は定義済みのアカウント種別かどうかを返す。
func (t UserType) Valid() bool {
	return t == UserTypePetOwner || t == UserTypeServiceProvider
}

// UserMetadata はIDプロバイダーのuser_metadataに保存される属性。
type UserMetadata struct {
	FullName     string   `json:"full_name"`
	UserType     UserType `json:"user_type"`
	BusinessName string   `json:"business_name,omitempty"`
}

// User はIDプロバイダーが管理するユーザーIDのローカルコピー。
// セッションが有効な間だけ保持する。
type User struct {
	ID       uuid.UUID    `json:"id"`
	Email    string       `json:"email"`
	Metadata UserMetadata `json:"user_metadata"`
}

// IsServiceProvider は事業者アカウントかどうかを返す。
func (u *User) IsServiceProvider() bool {
	return u != nil && u.Metadata.UserType == UserTypeServiceProvider
}

// Session はIDプロバイダーが発行した認証セッションを表す。
// アプリケーションは読み取り専用のキャッシュとして扱う。
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *User
}

// Expired は指定時刻の時点でアクセストークンが期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// BrowserSession はブラウザのセッションCookieとプロバイダーセッションの紐付けを表す。
// sessionsテーブルの1行に対応する。
type BrowserSession struct {
	ID             string
	UserID         uuid.UUID
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time // アクセストークンの有効期限
	User           User
	ExpiresAt      time.Time // 行（Cookie）の有効期限
	CreatedAt      time.Time
}

// ToSession はキャッシュしているプロバイダーセッションを返す。
func (b *BrowserSession) ToSession() *Session {
	user := b.User
	return &Session{
		AccessToken:  b.AccessToken,
		RefreshToken: b.RefreshToken,
		ExpiresAt:    b.TokenExpiresAt,
		User:         &user,
	}
}

// AdminSession はデモ用管理画面のセッションを表す。
// キー adminSession にJSONとして永続化される。
type AdminSession struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	Username        string `json:"username"`
	LoginTime       int64  `json:"loginTime"` // epoch ms
	ExpiresAt       int64  `json:"expiresAt"` // epoch ms
}
