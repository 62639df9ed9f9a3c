package saga

import (
	"context"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/storefront/domain"
)

// SettlementHandler 在一个事务里完成下单: 订单与订单行, 优惠用量, 库存, 清空购物车
type SettlementHandler struct {
	NextHandler
}

func (h *SettlementHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.Settlement")
	defer span.End()

	draft := checkoutCtx.Order
	var settled *domain.Order
	err := checkoutCtx.UoW.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		cart, err := loadSettleableCart(ctx, repos, checkoutCtx.UserID, checkoutCtx.Now)
		if err != nil {
			return err
		}
		order := domain.PlaceOrder(cart, draft.OrderNumber, draft.ShippingAddress, draft.PaymentMethod, checkoutCtx.Now)
		// 草稿之后账本被清理过 (例如优惠刚好过期), 已支付的金额不再成立
		if !order.FinalAmount.Equal(draft.FinalAmount) {
			return domain.ErrInvalidRequest.WithMessage("Cart changed during checkout, please review your cart and try again")
		}
		order.PaymentStatus = draft.PaymentStatus
		order.PaymentRef = draft.PaymentRef

		if err := repos.Orders().Create(ctx, order); err != nil {
			return err
		}
		for _, entry := range order.AppliedOffers {
			found, err := repos.Offers().IncrementUsage(ctx, entry.OfferID)
			if err != nil {
				return err
			}
			if !found {
				logger.Ctx(ctx).Warn().Int64("offer_id", entry.OfferID).Str("order_number", order.OrderNumber).
					Msg("offer vanished before usage increment, skipped")
			}
		}
		for _, item := range cart.Items {
			product := item.Product
			product.DecrementStock(item.Quantity)
			if err := repos.Products().Save(ctx, &product); err != nil {
				return err
			}
		}
		cart.Clear(checkoutCtx.Now)
		if err := repos.Carts().Save(ctx, cart); err != nil {
			return err
		}
		settled = order
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	checkoutCtx.Order = settled
	span.AddEvent("order settled")
	return h.executeNext(checkoutCtx)
}
