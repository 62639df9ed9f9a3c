package application

import (
	"context"
	"time"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/storefront/application/saga"
	"storefront/internal/service/storefront/domain"
	"storefront/internal/service/storefront/domain/port"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CheckoutService 把购物车结算成订单, 流程由一条责任链编排
type CheckoutService struct {
	uow            domain.UnitOfWork
	locker         port.CartLocker
	events         port.EventPublisher
	payment        port.PaymentAuthority
	paymentTimeout time.Duration
	tracer         trace.Tracer
	now            Clock
}

// NewCheckoutService payment 可以为 nil, 此时只接受货到付款
func NewCheckoutService(uow domain.UnitOfWork, locker port.CartLocker, events port.EventPublisher, payment port.PaymentAuthority, paymentTimeout time.Duration, tracer trace.Tracer, now Clock) *CheckoutService {
	if now == nil {
		now = systemClock
	}
	return &CheckoutService{
		uow: uow, locker: locker, events: events,
		payment: payment, paymentTimeout: paymentTimeout,
		tracer: tracer, now: now,
	}
}

func (s *CheckoutService) Checkout(ctx context.Context, userID int64, req CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.Checkout")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.String("payment.method", req.PaymentMethod))

	checkoutCtx := &saga.CheckoutContext{
		Ctx:             ctx,
		Tracer:          s.tracer,
		Now:             s.now(),
		UserID:          userID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentDetails:  req.PaymentDetails,
		UoW:             s.uow,
		Payment:         s.payment,
		Events:          s.events,
		PaymentTimeout:  s.paymentTimeout,
	}

	// 整条链持有购物车锁, 结算期间同一用户的应用/移除优惠请求会等待
	err := withCartLock(ctx, s.locker, userID, func(ctx context.Context) error {
		if err := s.buildChain().Handle(checkoutCtx); err != nil {
			checkoutCtx.TriggerCompensation(context.WithoutCancel(ctx))
			return err
		}
		return nil
	})
	if err != nil {
		metrics.Checkouts.WithLabelValues("failed").Inc()
		if _, ok := domain.AsError(err); !ok {
			logger.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("checkout failed")
		}
		return nil, fail(span, err)
	}

	order := checkoutCtx.Order
	metrics.Checkouts.WithLabelValues("success").Inc()
	logger.Ctx(ctx).Info().Int64("user_id", userID).Str("order_number", order.OrderNumber).
		Str("final_amount", order.FinalAmount.StringFixed(2)).Msg("order placed")
	span.SetAttributes(attribute.String("order.number", order.OrderNumber))

	return &CheckoutResponse{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		TotalAmount:    order.TotalAmount,
		DiscountAmount: order.DiscountAmount,
		FinalAmount:    order.FinalAmount,
		Status:         order.Status,
		PaymentStatus:  order.PaymentStatus,
	}, nil
}

func (s *CheckoutService) buildChain() saga.Handler {
	chain := new(saga.PrepareHandler)
	chain.
		SetNext(new(saga.PaymentHandler)).
		SetNext(new(saga.SettlementHandler)).
		SetNext(new(saga.PublishHandler))
	return chain
}
