package saga

import (
	"storefront/internal/pkg/logger"
	"storefront/internal/service/storefront/domain"
)

// PublishHandler 通知下游订单已生成。此时事务已提交, 发布失败不回滚订单
type PublishHandler struct {
	NextHandler
}

func (h *PublishHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.Publish")
	defer span.End()

	order := checkoutCtx.Order
	offerIDs := make([]int64, 0, len(order.AppliedOffers))
	for _, e := range order.AppliedOffers {
		offerIDs = append(offerIDs, e.OfferID)
	}
	event := domain.NewEvent(domain.EventOrderPlaced, order.OrderNumber, checkoutCtx.Now, map[string]any{
		"order_number":    order.OrderNumber,
		"user_id":         order.UserID,
		"total_amount":    order.TotalAmount.StringFixed(2),
		"discount_amount": order.DiscountAmount.StringFixed(2),
		"final_amount":    order.FinalAmount.StringFixed(2),
		"offer_ids":       offerIDs,
	})
	if err := checkoutCtx.Events.Publish(ctx, event); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Warn().Err(err).Str("order_number", order.OrderNumber).Msg("failed to publish order placed event")
	}
	return h.executeNext(checkoutCtx)
}
