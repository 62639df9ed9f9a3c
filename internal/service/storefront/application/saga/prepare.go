package saga

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront/internal/service/storefront/domain"
)

// PrepareHandler 校验请求并根据购物车当前状态生成订单草稿
type PrepareHandler struct {
	NextHandler
}

func (h *PrepareHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.Prepare")
	defer span.End()

	if strings.TrimSpace(checkoutCtx.ShippingAddress) == "" {
		return domain.ErrInvalidRequest.WithMessage("Shipping address is required")
	}
	if strings.TrimSpace(checkoutCtx.PaymentMethod) == "" {
		return domain.ErrInvalidRequest.WithMessage("Payment method is required")
	}

	number := domain.NewOrderNumber()
	err := checkoutCtx.UoW.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		cart, err := loadSettleableCart(ctx, repos, checkoutCtx.UserID, checkoutCtx.Now)
		if err != nil {
			return err
		}
		checkoutCtx.Order = domain.PlaceOrder(cart, number, checkoutCtx.ShippingAddress, checkoutCtx.PaymentMethod, checkoutCtx.Now)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.AddEvent("order draft prepared")
	return h.executeNext(checkoutCtx)
}

// loadSettleableCart 读取购物车, 丢弃失效优惠并用最新的商品信息校验库存
func loadSettleableCart(ctx context.Context, repos domain.Repositories, userID int64, now time.Time) (*domain.Cart, error) {
	cart, err := repos.Carts().GetForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}
	if cart.Ledger.Len() > 0 {
		live, err := repos.Offers().FindByIDsForShare(ctx, cart.Ledger.OfferIDs())
		if err != nil {
			return nil, err
		}
		cart.PurgeInvalidOffers(live, now)
	}
	for i, item := range cart.Items {
		product, err := repos.Products().FindByID(ctx, item.Product.ID)
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				return nil, domain.ErrProductNotFound.WithMessage("Product %q is no longer available", item.Product.Name)
			}
			return nil, err
		}
		if !product.Purchasable() || item.Quantity > product.Stock {
			return nil, domain.ErrProductUnavailable.WithMessage("Only %d units of %q are in stock", product.Stock, product.Name)
		}
		cart.Items[i].Product = *product
	}
	return cart, nil
}
