package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/smartpaw/internal/model"
)

// Repository はブラウザセッションの永続化に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type Repository interface {
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.BrowserSession, error)
	// Upsert はセッションを作成または更新する。
	Upsert(ctx context.Context, session *model.BrowserSession) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// Refresher は期限切れのアクセストークンを更新する。
type Refresher interface {
	RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error)
}

// ManagerConfig はManagerの設定。
type ManagerConfig struct {
	MaxAge time.Duration // ブラウザセッション（Cookie）の有効期間
	// RefreshSkew はアクセストークンの期限がこれ以内に迫っていればリフレッシュする。
	RefreshSkew time.Duration
}

// Manager はブラウザセッションIDとStoreを結び付ける。
//
// Loadはリクエストごとに新しいStoreを作り、永続化されたセッションで初期化する。
// Storeが認証済みになると行を保存し、未認証に戻ると行を削除する。
type Manager struct {
	repo      Repository
	refresher Refresher
	config    ManagerConfig
	now       func() time.Time
}

// NewManager はManagerを生成する。
func NewManager(repo Repository, refresher Refresher, config ManagerConfig) *Manager {
	if config.RefreshSkew <= 0 {
		config.RefreshSkew = 30 * time.Second
	}
	return &Manager{
		repo:      repo,
		refresher: refresher,
		config:    config,
		now:       time.Now,
	}
}

// MaxAge はブラウザセッションの有効期間を返す。
func (m *Manager) MaxAge() time.Duration {
	return m.config.MaxAge
}

// Load はbrowserIDに対応するStoreを生成し、初回のセッション取得まで済ませて返す。
// browserIDが空の場合や対応する行がない場合は新しいIDを採番する。
// ctxはStoreの購読者が永続化処理に使用する。
func (m *Manager) Load(ctx context.Context, browserID string) (*Store, error) {
	var current *model.Session
	known := false
	if browserID != "" {
		sess, err := m.fetch(ctx, browserID)
		switch {
		case err != nil:
			// 取得に失敗しただけなら発行済みのIDを維持する
			known = true
		case sess != nil:
			current, known = sess, true
		}
	}

	if !known {
		id, err := NewBrowserID()
		if err != nil {
			return nil, fmt.Errorf("failed to generate browser session ID: %w", err)
		}
		browserID = id
	}

	store := NewStore(browserID)
	store.Subscribe(m.persist(ctx, store))
	store.Hydrate(ctx, func(context.Context) (*model.Session, error) { return current, nil })
	return store, nil
}

// fetch は永続化されたセッションを取得する。
// アクセストークンが期限切れならリフレッシュし、失敗した場合は行を削除してnilを返す。
func (m *Manager) fetch(ctx context.Context, browserID string) (*model.Session, error) {
	row, err := m.repo.FindByID(ctx, browserID)
	if err != nil {
		slog.Error("failed to find browser session",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if row == nil {
		return nil, nil
	}

	current := row.ToSession()
	if current.ExpiresAt.After(m.now().Add(m.config.RefreshSkew)) {
		return current, nil
	}

	refreshed, err := m.refresher.RefreshSession(ctx, row.RefreshToken)
	if err != nil {
		slog.Info("session refresh failed, signing out",
			slog.String("user_id", row.UserID.String()),
			slog.String("error", err.Error()),
		)
		if delErr := m.repo.DeleteByID(ctx, browserID); delErr != nil {
			slog.Error("failed to delete expired session",
				slog.String("error", delErr.Error()),
			)
		}
		return nil, nil
	}

	if err := m.repo.Upsert(ctx, m.row(browserID, refreshed)); err != nil {
		slog.Error("failed to save refreshed session",
			slog.String("error", err.Error()),
		)
	}
	return refreshed, nil
}

// persist はStoreの変化を永続化する購読者を返す。
// 初回取得（INITIAL_SESSION）による変化は既に永続化済みのため対象外。
// サインイン（SIGNED_IN）ではIDを振り直し、以前のIDの行を削除してから保存する。
func (m *Manager) persist(ctx context.Context, store *Store) Listener {
	return func(prev, next Snapshot) {
		switch {
		case next.Authenticated() && next.Event == EventSignedIn:
			if err := m.rotate(ctx, store); err != nil {
				slog.Error("failed to rotate browser session ID",
					slog.String("error", err.Error()),
				)
				return
			}
			m.save(ctx, store.ID(), next)
		case next.Authenticated() && next.Event != EventInitialSession:
			m.save(ctx, store.ID(), next)
		case prev.Authenticated() && !next.Authenticated():
			if err := m.repo.DeleteByID(ctx, store.ID()); err != nil {
				slog.Error("failed to delete browser session",
					slog.String("event", string(next.Event)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// rotate はStoreに新しいブラウザセッションIDを割り当て、以前のIDの行を削除する。
func (m *Manager) rotate(ctx context.Context, store *Store) error {
	id, err := NewBrowserID()
	if err != nil {
		return err
	}
	old := store.rotateID(id)
	if err := m.repo.DeleteByID(ctx, old); err != nil {
		slog.Warn("failed to delete previous browser session",
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (m *Manager) save(ctx context.Context, browserID string, next Snapshot) {
	if err := m.repo.Upsert(ctx, m.row(browserID, next.Session)); err != nil {
		slog.Error("failed to save browser session",
			slog.String("event", string(next.Event)),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Manager) row(browserID string, s *model.Session) *model.BrowserSession {
	now := m.now()
	return &model.BrowserSession{
		ID:             browserID,
		UserID:         s.User.ID,
		AccessToken:    s.AccessToken,
		RefreshToken:   s.RefreshToken,
		TokenExpiresAt: s.ExpiresAt,
		User:           *s.User,
		ExpiresAt:      now.Add(m.config.MaxAge),
		CreatedAt:      now,
	}
}

// NewBrowserID は暗号的に安全なブラウザセッションIDを生成する。
func NewBrowserID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
