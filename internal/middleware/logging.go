package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/smartpaw/internal/session"
)

// browserIDLogLength はログに出すブラウザセッションIDの先頭文字数。
const browserIDLogLength = 8

type requestLogKey struct{}

// requestLog はアクセスログ用にリクエスト処理中に判明した情報を保持する。
// セッションミドルウェアはロガーより内側で動くため、ポインタ経由で受け渡す。
type requestLog struct {
	store *session.Store
}

// attachStoreToLog は読み込んだStoreをアクセスログに関連付ける。
// ロガーが設定されていない場合は何もしない。
func attachStoreToLog(ctx context.Context, store *session.Store) {
	if rl, ok := ctx.Value(requestLogKey{}).(*requestLog); ok {
		rl.store = store
	}
}

// responseRecorder はステータスコードと書き込みバイト数を記録する。
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rr *responseRecorder) WriteHeader(code int) {
	if rr.status == 0 {
		rr.status = code
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += n
	return n, err
}

// Unwrap はhttp.ResponseControllerから元のWriterを参照できるようにする。
func (rr *responseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}

// statusOrDefault は何も書き込まれなかった場合に200を返す。
func (rr *responseRecorder) statusOrDefault() int {
	if rr.status == 0 {
		return http.StatusOK
	}
	return rr.status
}

// NewLoggingMiddleware はリクエストごとにJSON構造化のアクセスログを出力するミドルウェアを返す。
//
// method、path、route、status、bytes、duration_msに加え、
// ブラウザセッションが読み込まれていればsession_stateと短縮したbrowser_id、
// 認証済みならuser_idとuser_typeを出力する。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rl := &requestLog{}
			rec := &responseRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestLogKey{}, rl)))

			status := rec.statusOrDefault()
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", rec.bytes),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					attrs = append(attrs, slog.String("route", pattern))
				}
			}
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				attrs = append(attrs, slog.String("request_id", reqID))
			}
			attrs = append(attrs, sessionAttrs(rl.store)...)

			logger.LogAttrs(r.Context(), levelForStatus(status), "http_request", attrs...)
		})
	}
}

// sessionAttrs はStoreの状態をログ属性に変換する。
func sessionAttrs(store *session.Store) []slog.Attr {
	if store == nil {
		return nil
	}
	snap := store.Snapshot()
	attrs := []slog.Attr{
		slog.String("browser_id", shortID(store.ID())),
		slog.String("session_state", string(snap.State)),
	}
	if snap.Authenticated() && snap.User != nil {
		attrs = append(attrs,
			slog.String("user_id", snap.User.ID.String()),
			slog.String("user_type", string(snap.User.Metadata.UserType)),
		)
	}
	return attrs
}

func shortID(id string) string {
	if len(id) <= browserIDLogLength {
		return id
	}
	return id[:browserIDLogLength]
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
