// Package session はブラウザごとの認証セッションの状態管理を提供する。
//
// Storeは現在のセッションとユーザーのスナップショットを保持し、
// IDプロバイダー由来のイベントを受けてスナップショットを差し替え、購読者に通知する。
package session

import (
	"context"
	"sync"

	"github.com/hitoshi/smartpaw/internal/model"
)

// State はStoreの状態。
type State string

const (
	StateUninitialized   State = "uninitialized"
	StateLoading         State = "loading"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

// EventType はセッション変化イベントの種類。
type EventType string

const (
	EventInitialSession EventType = "INITIAL_SESSION"
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserDeleted    EventType = "USER_DELETED"
	EventSessionExpired EventType = "SESSION_EXPIRED"
)

// Event はセッション変化イベント。
// SignedOut/UserDeleted/SessionExpiredではSessionは無視される。
type Event struct {
	Type    EventType
	Session *model.Session
}

// Snapshot はある時点のStoreの内容。
// Authenticatedの場合のみSessionとUserが非nil。
type Snapshot struct {
	State   State
	Event   EventType // このスナップショットを生成したイベント
	Session *model.Session
	User    *model.User
}

// Authenticated は認証済みかどうかを返す。
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated
}

// Fetcher は現在のセッションを1回だけ取得する関数。
// セッションがない場合は(nil, nil)を返す。
type Fetcher func(ctx context.Context) (*model.Session, error)

// Listener はスナップショット変更の通知を受け取る関数。
type Listener func(prev, next Snapshot)

// Store はブラウザ1つ分の認証状態を保持する。
type Store struct {
	mu        sync.RWMutex
	id        string
	snap      Snapshot
	listeners []listenerEntry
	nextID    int
}

type listenerEntry struct {
	id int
	fn Listener
}

// NewStore はuninitialized状態のStoreを生成する。
// idはブラウザセッションID。
func NewStore(id string) *Store {
	return &Store{
		id:   id,
		snap: Snapshot{State: StateUninitialized},
	}
}

// ID はブラウザセッションIDを返す。
// サインインでIDが振り直された後は新しいIDを返す。
func (s *Store) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// rotateID はブラウザセッションIDを差し替え、以前のIDを返す。
func (s *Store) rotateID(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.id
	s.id = id
	return old
}

// Snapshot は現在のスナップショットを返す。
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// State は現在の状態を返す。
func (s *Store) State() State {
	return s.Snapshot().State
}

// IsLoading は初回取得の完了待ちかどうかを返す。
// 保護ページはこの間リダイレクト判定を行わない。
func (s *Store) IsLoading() bool {
	st := s.State()
	return st == StateUninitialized || st == StateLoading
}

// WaitSettled は初回取得が完了するまで待ち、その時点のスナップショットを返す。
// ctxが先に終了した場合はctxのエラーを返す。
func (s *Store) WaitSettled(ctx context.Context) (Snapshot, error) {
	settled := make(chan Snapshot, 1)
	unsubscribe := s.Subscribe(func(_, next Snapshot) {
		if next.State == StateUninitialized || next.State == StateLoading {
			return
		}
		select {
		case settled <- next:
		default:
		}
	})
	defer unsubscribe()

	// 購読登録前に確定していた場合
	if !s.IsLoading() {
		return s.Snapshot(), nil
	}

	select {
	case snap := <-settled:
		return snap, nil
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

// Subscribe はスナップショット変更の購読を登録する。
// 戻り値の関数を呼ぶと購読を解除する。
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Hydrate は初回のセッション取得を行う。
// uninitialized以外の状態では何もせず現在のスナップショットを返す。
// 取得開始時点でloadingに遷移し、結果に応じてauthenticatedまたはunauthenticatedに遷移する。
func (s *Store) Hydrate(ctx context.Context, fetch Fetcher) Snapshot {
	started := false
	s.replace(func(cur Snapshot) (Snapshot, bool) {
		if cur.State != StateUninitialized {
			return cur, false
		}
		started = true
		return Snapshot{State: StateLoading}, true
	})
	if !started {
		return s.Snapshot()
	}

	session, err := fetch(ctx)
	if err != nil {
		session = nil
	}

	return s.replace(func(cur Snapshot) (Snapshot, bool) {
		// 取得中に別のイベントで確定した場合はそちらを優先する
		if cur.State != StateLoading {
			return cur, false
		}
		return snapshotFor(EventInitialSession, session), true
	})
}

// Apply はIDプロバイダーのイベントを反映する。
func (s *Store) Apply(ev Event) Snapshot {
	return s.replace(func(cur Snapshot) (Snapshot, bool) {
		switch ev.Type {
		case EventSignedOut, EventUserDeleted, EventSessionExpired:
			return snapshotFor(ev.Type, nil), true
		case EventTokenRefreshed:
			// 未認証のままのリフレッシュ通知は無視する
			if cur.State != StateAuthenticated || ev.Session == nil {
				return cur, false
			}
			return snapshotFor(ev.Type, ev.Session), true
		default:
			return snapshotFor(ev.Type, ev.Session), true
		}
	})
}

// replace はスナップショットをアトミックに差し替え、変更があればロック外で購読者に通知する。
func (s *Store) replace(update func(cur Snapshot) (Snapshot, bool)) Snapshot {
	s.mu.Lock()
	prev := s.snap
	next, changed := update(prev)
	if !changed {
		s.mu.Unlock()
		return prev
	}
	s.snap = next
	listeners := make([]Listener, len(s.listeners))
	for i, l := range s.listeners {
		listeners[i] = l.fn
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(prev, next)
	}
	return next
}

// snapshotFor はイベントとセッションからスナップショットを作る。
func snapshotFor(ev EventType, session *model.Session) Snapshot {
	if session == nil {
		return Snapshot{State: StateUnauthenticated, Event: ev}
	}
	return Snapshot{
		State:   StateAuthenticated,
		Event:   ev,
		Session: session,
		User:    session.User,
	}
}
