package domain

import (
	"context"
	"time"
)

// OfferRepository 优惠的持久化端口
type OfferRepository interface {
	FindByID(ctx context.Context, id int64) (*Offer, error)
	FindByCode(ctx context.Context, code string) (*Offer, error)
	// FindByIDs 返回存在的那部分, 缺失的 ID 不报错
	FindByIDs(ctx context.Context, ids []int64) (map[int64]*Offer, error)
	// FindByIDsForShare 同 FindByIDs, 但读取最新提交的版本并加共享锁直到事务结束,
	// 购物车事务用它校验账本, 管理端对这些优惠的修改会等待该购物车提交
	FindByIDsForShare(ctx context.Context, ids []int64) (map[int64]*Offer, error)
	List(ctx context.Context) ([]*Offer, error)
	// ListValid 返回 now 时刻有效的优惠, 已按自动应用的顺序排好
	ListValid(ctx context.Context, now time.Time) ([]*Offer, error)
	// ListExpired 返回 end_date <= now 的优惠
	ListExpired(ctx context.Context, now time.Time) ([]*Offer, error)
	Create(ctx context.Context, offer *Offer) error
	Update(ctx context.Context, offer *Offer) error
	Delete(ctx context.Context, ids ...int64) (int64, error)
	// IncrementUsage 优惠不存在时返回 false, 不报错
	IncrementUsage(ctx context.Context, id int64) (bool, error)
	SetUsage(ctx context.Context, id int64, count int64) error
}

// CartRepository 购物车的持久化端口
type CartRepository interface {
	// GetForUpdate 取用户的购物车 (不存在则创建), 在事务内会锁住该行直到提交
	GetForUpdate(ctx context.Context, userID int64) (*Cart, error)
	Save(ctx context.Context, cart *Cart) error
	// DetachOffers 从所有购物车的账本中移除这些优惠, 返回受影响的购物车数
	DetachOffers(ctx context.Context, offerIDs ...int64) (int64, error)
	// ListWithOffers 返回账本非空的购物车
	ListWithOffers(ctx context.Context) ([]*Cart, error)
}

type ProductRepository interface {
	FindByID(ctx context.Context, id int64) (*Product, error)
	Save(ctx context.Context, product *Product) error
}

type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	FindByNumber(ctx context.Context, number string) (*Order, error)
	ListByUser(ctx context.Context, userID int64) ([]*Order, error)
	CountByUser(ctx context.Context, userID int64) (int64, error)
	Update(ctx context.Context, order *Order) error
	// FindNumbersByOffer 返回快照中引用了该优惠的订单号
	FindNumbersByOffer(ctx context.Context, offerID int64) ([]string, error)
}

// Repositories 是同一个事务内可见的全部仓储。
type Repositories interface {
	Offers() OfferRepository
	Carts() CartRepository
	Products() ProductRepository
	Orders() OrderRepository
}

// UnitOfWork 在一个事务中执行 fn, fn 返回错误则全部回滚。
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
