package saga

import (
	"context"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/storefront/domain"
	"storefront/internal/service/storefront/domain/port"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PaymentHandler 向支付机构创建并确认支付。货到付款与零元订单跳过这一步
type PaymentHandler struct {
	NextHandler
}

func (h *PaymentHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.Payment")
	defer span.End()

	order := checkoutCtx.Order
	span.SetAttributes(attribute.String("payment.method", order.PaymentMethod), attribute.String("order.number", order.OrderNumber))
	if order.PaymentMethod == domain.PaymentMethodCOD || order.FinalAmount.IsZero() {
		span.AddEvent("payment skipped")
		return h.executeNext(checkoutCtx)
	}
	if checkoutCtx.Payment == nil {
		return domain.ErrPaymentUnavailable.WithMessage("Payment method %q is not available", order.PaymentMethod)
	}

	createCtx, cancel := checkoutCtx.withPaymentTimeout(ctx)
	intent, err := checkoutCtx.Payment.CreateIntent(createCtx, port.PaymentIntentRequest{
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Amount:      order.FinalAmount,
		Method:      order.PaymentMethod,
		Details:     checkoutCtx.PaymentDetails,
	})
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create payment intent failed")
		logger.Ctx(ctx).Error().Err(err).Str("order_number", order.OrderNumber).Msg("create payment intent failed")
		return domain.ErrPaymentFailed.WithMessage("Payment could not be started, please try again")
	}

	confirmCtx, cancel := checkoutCtx.withPaymentTimeout(ctx)
	err = checkoutCtx.Payment.Confirm(confirmCtx, intent.ID)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm payment failed")
		logger.Ctx(ctx).Error().Err(err).Str("order_number", order.OrderNumber).Str("intent_id", intent.ID).Msg("confirm payment failed")
		return domain.ErrPaymentFailed.WithMessage("Payment was not confirmed")
	}

	checkoutCtx.PaymentID = intent.ID
	order.PaymentStatus = domain.PaymentStatusPaid
	order.PaymentRef = intent.ID

	// 补偿: 扣款成功但后续结算失败时全额退款
	amount := order.FinalAmount
	checkoutCtx.AddCompensation(func(ctx context.Context) {
		refundCtx, cancel := checkoutCtx.withPaymentTimeout(ctx)
		defer cancel()
		if err := checkoutCtx.Payment.Refund(refundCtx, intent.ID, amount); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("order_number", order.OrderNumber).Str("intent_id", intent.ID).
				Msg("CRITICAL: refund after failed settlement did not succeed")
			return
		}
		logger.Ctx(ctx).Info().Str("order_number", order.OrderNumber).Msg("payment refunded after failed settlement")
	})
	span.AddEvent("payment confirmed")
	return h.executeNext(checkoutCtx)
}
