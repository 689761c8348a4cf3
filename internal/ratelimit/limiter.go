// Package ratelimit は識別子ごとのスライディングウィンドウ方式の試行回数制限を提供する。
//
// サインアップ・サインインの試行を「signup-<email>」「signin-<email>」のような
// キーで記録し、直近のウィンドウ内の試行回数が上限に達している場合は拒否する。
// セキュリティ境界ではなく、あくまで助言的なスロットリングとして扱う。
package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Config はスライディングウィンドウの設定を保持する。
type Config struct {
	MaxAttempts int           // ウィンドウ内で許可する試行回数
	Window      time.Duration // ウィンドウ幅
}

// DefaultConfig はデフォルトの設定（15分間に5回まで）を返す。
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		Window:      15 * time.Minute,
	}
}

// Store は試行時刻の記録先のインターフェース。
// Attemptは「ウィンドウ外の記録を捨てる → 件数確認 → 許可時のみ記録」を
// 同一キーについてアトミックに行う必要がある。
type Store interface {
	Attempt(ctx context.Context, key string, now time.Time, window time.Duration, maxAttempts int) (bool, error)
}

// Limiter はスライディングウィンドウ方式の試行回数制限。
type Limiter struct {
	store  Store
	config Config
	now    func() time.Time
}

// Option はLimiterの生成オプション。
type Option func(*Limiter)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New はLimiterを生成する。
func New(store Store, config Config, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		config: config,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsAllowed はキーに対する新しい試行を許可するかを判定する。
// 許可した場合のみ試行時刻を記録する。
// ストアのエラー時はログを出力して許可する（fail open）。
func (l *Limiter) IsAllowed(ctx context.Context, key string) bool {
	allowed, err := l.store.Attempt(ctx, key, l.now(), l.config.Window, l.config.MaxAttempts)
	if err != nil {
		slog.Warn("rate limit store unavailable, allowing attempt",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return true
	}
	if !allowed {
		slog.Warn("rate limit exceeded",
			slog.String("key", key),
			slog.Int("max_attempts", l.config.MaxAttempts),
			slog.Duration("window", l.config.Window),
		)
	}
	return allowed
}

// Config は設定値を返す。
func (l *Limiter) Config() Config {
	return l.config
}
