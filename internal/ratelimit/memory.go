package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore はプロセス内メモリに試行時刻を保持するStore。
// 再起動で記録は失われる。
type MemoryStore struct {
	mu       sync.Mutex
	attempts map[string][]time.Time

	retention time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewMemoryStore はMemoryStoreを生成する。
// retentionが正の場合、retentionごとに最後の試行がretentionより古いキーを削除する。
// retentionにはウィンドウ幅以上の値を指定すること。
func NewMemoryStore(retention time.Duration) *MemoryStore {
	s := &MemoryStore{
		attempts:  make(map[string][]time.Time),
		retention: retention,
		stopCh:    make(chan struct{}),
	}

	if retention > 0 {
		go s.cleanupLoop()
	}

	return s
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// Attempt はウィンドウ外の記録を捨て、上限未満であれば現在時刻を記録して許可する。
func (s *MemoryStore) Attempt(_ context.Context, key string, now time.Time, window time.Duration, maxAttempts int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recent := prune(s.attempts[key], now, window)
	if len(recent) >= maxAttempts {
		s.attempts[key] = recent
		return false, nil
	}

	s.attempts[key] = append(recent, now)
	return true, nil
}

// Count はキーの記録件数を返す。テストおよびメトリクス用。
func (s *MemoryStore) Count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts[key])
}

// KeyCount は現在管理されているキー数を返す。
func (s *MemoryStore) KeyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

// cleanupLoop は定期的に古いキーを削除する。
func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.retention)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.Cleanup(now, s.retention)
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup は最後の試行がmaxAgeより古いキーを削除する。
// 記録がないキーは試行0回として扱われるため、判定結果は変わらない。
func (s *MemoryStore) Cleanup(now time.Time, maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, ts := range s.attempts {
		if len(ts) == 0 || now.Sub(ts[len(ts)-1]) > maxAge {
			delete(s.attempts, key)
		}
	}
}

// prune はnowからwindow以内の記録だけを残す。tsは昇順。
func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0:0], ts[i:]...)
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)
