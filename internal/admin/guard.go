// Package admin はデモ用管理画面のガードを提供する。
//
// 固定の資格情報でログインする簡易的な仕組みで、通常の認証（auth）とは独立している。
// セッションはブラウザごとにキー adminSession のJSONとしてKVStoreに保存する。
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/smartpaw/internal/model"
)

// デモ用の資格情報とセッション設定。
const (
	DemoUsername = "admin"
	demoPassword = "smartpaw2025"

	// SessionKey は管理セッションを保存するキー。
	SessionKey = "adminSession"
	// SessionTTL は管理セッションの有効期間。
	SessionTTL = 24 * time.Hour
)

// Option はGuardのオプション。
type Option func(*Guard)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// WithBcryptCost はパスワードハッシュのコストを指定する。
func WithBcryptCost(cost int) Option {
	return func(g *Guard) {
		g.cost = cost
	}
}

// Guard はデモ用管理画面へのアクセスを判定する。
type Guard struct {
	kv   KVStore
	hash []byte
	cost int
	now  func() time.Time
}

// NewGuard はGuardを生成する。
// デモ用パスワードは平文で保持せず、生成時にbcryptでハッシュ化する。
func NewGuard(kv KVStore, opts ...Option) (*Guard, error) {
	g := &Guard{
		kv:   kv,
		cost: bcrypt.DefaultCost,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), g.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}
	g.hash = hash
	return g, nil
}

// Login は資格情報を検証し、一致すれば管理セッションを保存して返す。
// 一致しない場合は何も保存しない。
func (g *Guard) Login(ctx context.Context, scope, username, password string) (*model.AdminSession, error) {
	if username != DemoUsername || bcrypt.CompareHashAndPassword(g.hash, []byte(password)) != nil {
		slog.Warn("admin login rejected",
			slog.String("username", username),
		)
		return nil, model.NewAdminUnauthorizedError()
	}

	loginTime := g.now().UnixMilli()
	session := &model.AdminSession{
		IsAuthenticated: true,
		Username:        username,
		LoginTime:       loginTime,
		ExpiresAt:       loginTime + SessionTTL.Milliseconds(),
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to encode admin session: %w", err)
	}
	if err := g.kv.Set(ctx, scope, SessionKey, string(raw)); err != nil {
		return nil, fmt.Errorf("failed to save admin session: %w", err)
	}

	slog.Info("admin logged in",
		slog.String("username", username),
	)
	return session, nil
}

// Current は有効な管理セッションを返す。
// 存在しない、壊れている、または期限切れの場合はnilを返し、不要な記録は削除する。
func (g *Guard) Current(ctx context.Context, scope string) (*model.AdminSession, error) {
	raw, ok, err := g.kv.Get(ctx, scope, SessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load admin session: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var session model.AdminSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil || !session.IsAuthenticated {
		return nil, g.kv.Delete(ctx, scope, SessionKey)
	}

	// 期限ちょうどはまだ有効
	if g.now().UnixMilli() > session.ExpiresAt {
		return nil, g.kv.Delete(ctx, scope, SessionKey)
	}

	return &session, nil
}

// Logout は管理セッションを削除する。
func (g *Guard) Logout(ctx context.Context, scope string) error {
	if err := g.kv.Delete(ctx, scope, SessionKey); err != nil {
		return fmt.Errorf("failed to delete admin session: %w", err)
	}
	return nil
}
