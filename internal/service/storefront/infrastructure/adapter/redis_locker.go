package adapter

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/redis"

	"github.com/google/uuid"
)

const unlockScriptName = "cart_unlock"

// 只有持有者才能删除锁, 防止超时后误删别人的锁
var unlockScript = `
-- KEYS[1]: 锁的 Key, 例如: storefront:lock:{cart:42}
-- ARGV[1]: 加锁时写入的 token
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`

// RedisLocker 基于 SET NX PX 的分布式锁, 多实例部署时保证同一购物车串行
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisLocker(ctx context.Context, client *redis.Client, ttl time.Duration) (*RedisLocker, error) {
	if err := client.LoadScriptFromContent(ctx, unlockScriptName, unlockScript); err != nil {
		return nil, fmt.Errorf("failed to load unlock script: %w", err)
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 20 * time.Millisecond}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := fmt.Sprintf("storefront:lock:{%s}", key)
	token := uuid.NewString()

	for {
		ok, err := l.client.GetClient().SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", lockKey, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	return func() {
		// 调用方的 ctx 可能已经结束, 释放锁用独立的短超时
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if _, err := l.client.RunScript(releaseCtx, unlockScriptName, []string{lockKey}, token); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("key", lockKey).Msg("failed to release redis lock")
		}
	}, nil
}
