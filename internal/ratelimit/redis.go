package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript はソート済みセットで試行時刻を管理する。
// KEYS[1]: キー, ARGV[1]: 現在時刻(ms), ARGV[2]: ウィンドウ(ms), ARGV[3]: 上限, ARGV[4]: メンバー
// 戻り値: 1=許可, 0=拒否
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
	return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisStore はRedisのソート済みセットに試行時刻を保持するStore。
// 複数インスタンス間で試行回数を共有できる。
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore はRedisStoreを生成する。
// prefixは全キーの先頭に付与される（例: "smartpaw:ratelimit:"）。
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

// Attempt はLuaスクリプトで剪定・件数確認・記録をアトミックに実行する。
func (s *RedisStore) Attempt(ctx context.Context, key string, now time.Time, window time.Duration, maxAttempts int) (bool, error) {
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())

	res, err := slidingWindowScript.Run(ctx, s.client,
		[]string{s.prefix + key},
		now.UnixMilli(), window.Milliseconds(), maxAttempts, member,
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to run sliding window script: %w", err)
	}

	return res == 1, nil
}

// compile-time interface check
var _ Store = (*RedisStore)(nil)
