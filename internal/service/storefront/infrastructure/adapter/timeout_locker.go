package adapter

import (
	"context"
	"errors"
	"time"

	"storefront/internal/service/storefront/domain"
	"storefront/internal/service/storefront/domain/port"
)

// TimeoutLocker 限制等锁的最长时间, 超时返回可展示给用户的忙碌错误
type TimeoutLocker struct {
	inner port.CartLocker
	wait  time.Duration
}

func NewTimeoutLocker(inner port.CartLocker, wait time.Duration) port.CartLocker {
	if wait <= 0 {
		return inner
	}
	return &TimeoutLocker{inner: inner, wait: wait}
}

func (l *TimeoutLocker) Lock(ctx context.Context, key string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	unlock, err := l.inner.Lock(waitCtx, key)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, domain.ErrCartBusy
		}
		return nil, err
	}
	return unlock, nil
}
