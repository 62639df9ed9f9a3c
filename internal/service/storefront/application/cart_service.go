package application

import (
	"context"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/storefront/domain"
	"storefront/internal/service/storefront/domain/port"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CartService 购物车商品的增删改查。任何商品变动都会清空账本
type CartService struct {
	uow    domain.UnitOfWork
	locker port.CartLocker
	events port.EventPublisher
	tracer trace.Tracer
	now    Clock
}

func NewCartService(uow domain.UnitOfWork, locker port.CartLocker, events port.EventPublisher, tracer trace.Tracer, now Clock) *CartService {
	if now == nil {
		now = systemClock
	}
	return &CartService{uow: uow, locker: locker, events: events, tracer: tracer, now: now}
}

// GetCart 读取购物车, 顺带清理失效的优惠
func (s *CartService) GetCart(ctx context.Context, userID int64) (*CartDTO, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetCart")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	var (
		dto     CartDTO
		removed []domain.AppliedOffer
	)
	now := s.now()
	err := withCartLock(ctx, s.locker, userID, func(ctx context.Context) error {
		return s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
			cart, err := repos.Carts().GetForUpdate(ctx, userID)
			if err != nil {
				return err
			}
			if removed, err = purgeLedger(ctx, repos, cart, now); err != nil {
				return err
			}
			if len(removed) > 0 {
				if err := repos.Carts().Save(ctx, cart); err != nil {
					return err
				}
			}
			dto = toCartDTO(cart, len(removed) > 0)
			return nil
		})
	})
	if err != nil {
		return nil, fail(span, err)
	}
	publishAll(ctx, s.events, removedEvents(userID, removed, "expired", now))
	return &dto, nil
}

// AddItem 加购, 数量累加后不能超过库存
func (s *CartService) AddItem(ctx context.Context, userID int64, req AddItemRequest) (*CartDTO, error) {
	ctx, span := s.tracer.Start(ctx, "service.AddCartItem")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.Int64("product.id", req.ProductID))

	if req.ProductID <= 0 || req.Quantity <= 0 {
		return nil, fail(span, domain.ErrInvalidRequest.WithMessage("product_id and a positive quantity are required"))
	}
	return s.mutate(ctx, span, userID, func(ctx context.Context, repos domain.Repositories, cart *domain.Cart) error {
		product, err := repos.Products().FindByID(ctx, req.ProductID)
		if err != nil {
			return err
		}
		inCart := 0
		for _, item := range cart.Items {
			if item.Product.ID == product.ID {
				inCart = item.Quantity
			}
		}
		if product.Purchasable() && inCart+req.Quantity > product.Stock {
			return domain.ErrProductUnavailable.WithMessage("Only %d units of %q are in stock", product.Stock, product.Name)
		}
		return cart.AddItem(*product, req.Quantity, s.now())
	})
}

// UpdateItem 修改数量, 数量小于等于 0 时删除该行
func (s *CartService) UpdateItem(ctx context.Context, userID, productID int64, req UpdateItemRequest) (*CartDTO, error) {
	ctx, span := s.tracer.Start(ctx, "service.UpdateCartItem")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.Int64("product.id", productID))

	return s.mutate(ctx, span, userID, func(ctx context.Context, repos domain.Repositories, cart *domain.Cart) error {
		if req.Quantity > 0 {
			for _, item := range cart.Items {
				if item.Product.ID == productID && req.Quantity > item.Product.Stock {
					return domain.ErrProductUnavailable.WithMessage("Only %d units of %q are in stock", item.Product.Stock, item.Product.Name)
				}
			}
		}
		return cart.UpdateItem(productID, req.Quantity, s.now())
	})
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID int64) (*CartDTO, error) {
	ctx, span := s.tracer.Start(ctx, "service.RemoveCartItem")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.Int64("product.id", productID))

	return s.mutate(ctx, span, userID, func(ctx context.Context, repos domain.Repositories, cart *domain.Cart) error {
		return cart.RemoveItem(productID, s.now())
	})
}

func (s *CartService) mutate(ctx context.Context, span trace.Span, userID int64, change func(ctx context.Context, repos domain.Repositories, cart *domain.Cart) error) (*CartDTO, error) {
	var (
		dto     CartDTO
		cleared []domain.AppliedOffer
	)
	err := withCartLock(ctx, s.locker, userID, func(ctx context.Context) error {
		return s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
			cart, err := repos.Carts().GetForUpdate(ctx, userID)
			if err != nil {
				return err
			}
			cleared = cart.Ledger.Entries()
			if err := change(ctx, repos, cart); err != nil {
				return err
			}
			if err := repos.Carts().Save(ctx, cart); err != nil {
				return err
			}
			dto = toCartDTO(cart, false)
			return nil
		})
	})
	if err != nil {
		return nil, fail(span, err)
	}
	if len(cleared) > 0 {
		metrics.OffersRemoved.WithLabelValues("cart_changed").Add(float64(len(cleared)))
		logger.Ctx(ctx).Info().Int64("user_id", userID).Int("offers_cleared", len(cleared)).Msg("cart items changed, ledger cleared")
		publishAll(ctx, s.events, removedEvents(userID, cleared, "cart_changed", s.now()))
	}
	return &dto, nil
}
