package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/smartpaw/internal/middleware"
	"github.com/hitoshi/smartpaw/internal/model"
	"github.com/hitoshi/smartpaw/internal/session"
)

var testUserID = uuid.MustParse("0b7e3a52-91c4-4d7a-a0d2-3c5e8f1b2a44")

func testUser(userType model.UserType) *model.User {
	return &model.User{
		ID:    testUserID,
		Email: "owner@example.com",
		Metadata: model.UserMetadata{
			FullName: "Pat Owner",
			UserType: userType,
		},
	}
}

func testSession(userType model.UserType) *model.Session {
	return &model.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         testUser(userType),
	}
}

// settledStore は初回取得を終えたStoreを返す。sessがnilなら未認証。
func settledStore(id string, sess *model.Session) *session.Store {
	store := session.NewStore(id)
	store.Hydrate(context.Background(), func(ctx context.Context) (*model.Session, error) {
		return sess, nil
	})
	return store
}

// withStore はリクエストにStoreを注入する。
func withStore(r *http.Request, store *session.Store) *http.Request {
	return r.WithContext(middleware.ContextWithStore(r.Context(), store))
}

// staticLoader は常に同じStoreを返すSessionLoader。
type staticLoader struct {
	store *session.Store
}

func (l *staticLoader) Load(ctx context.Context, browserID string) (*session.Store, error) {
	return l.store, nil
}

func (l *staticLoader) MaxAge() time.Duration {
	return time.Hour
}
