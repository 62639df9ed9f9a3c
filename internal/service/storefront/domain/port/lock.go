package port

import "context"

// CartLocker 为同一个购物车的读-改-写提供互斥。
type CartLocker interface {
	// Lock 阻塞直到拿到锁或 ctx 结束, 返回的 unlock 必须调用且只调用一次
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
