package application

import (
	"context"
	"time"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/storefront/domain"
	"storefront/internal/service/storefront/domain/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OrderService 订单查询, 取消以及管理端的状态推进
type OrderService struct {
	uow            domain.UnitOfWork
	events         port.EventPublisher
	payment        port.PaymentAuthority
	paymentTimeout time.Duration
	refundPercent  decimal.Decimal
	tracer         trace.Tracer
	now            Clock
}

func NewOrderService(uow domain.UnitOfWork, events port.EventPublisher, payment port.PaymentAuthority, paymentTimeout time.Duration, refundPercent decimal.Decimal, tracer trace.Tracer, now Clock) *OrderService {
	if now == nil {
		now = systemClock
	}
	return &OrderService{
		uow: uow, events: events, payment: payment, paymentTimeout: paymentTimeout,
		refundPercent: refundPercent, tracer: tracer, now: now,
	}
}

// History 按时间倒序返回用户的订单
func (s *OrderService) History(ctx context.Context, userID int64) ([]OrderDTO, error) {
	ctx, span := s.tracer.Start(ctx, "service.OrderHistory")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	var out []OrderDTO
	err := s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		orders, err := repos.Orders().ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		out = make([]OrderDTO, 0, len(orders))
		for _, o := range orders {
			out = append(out, toOrderDTO(o))
		}
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}
	return out, nil
}

// Detail 只能查看自己的订单, 别人的订单视为不存在
func (s *OrderService) Detail(ctx context.Context, userID int64, number string) (*OrderDTO, error) {
	ctx, span := s.tracer.Start(ctx, "service.OrderDetail")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.String("order.number", number))

	var dto OrderDTO
	err := s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		order, err := findOwnedOrder(ctx, repos, userID, number)
		if err != nil {
			return err
		}
		dto = toOrderDTO(order)
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}
	return &dto, nil
}

func findOwnedOrder(ctx context.Context, repos domain.Repositories, userID int64, number string) (*domain.Order, error) {
	order, err := repos.Orders().FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

// Cancel 顾客取消订单。重复取消直接返回当前状态
func (s *OrderService) Cancel(ctx context.Context, userID int64, number string) (*CancelOrderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.CancelOrder")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.String("order.number", number))

	resp, changed, err := s.cancel(ctx, func(ctx context.Context, repos domain.Repositories) (*domain.Order, error) {
		return findOwnedOrder(ctx, repos, userID, number)
	})
	if err != nil {
		return nil, fail(span, err)
	}
	if changed {
		logger.Ctx(ctx).Info().Int64("user_id", userID).Str("order_number", number).
			Str("refund_amount", resp.RefundAmount.StringFixed(2)).Msg("order cancelled")
	}
	return resp, nil
}

// cancel 在事务内完成状态变更和退款; 退款失败则整个取消回滚
func (s *OrderService) cancel(ctx context.Context, load func(ctx context.Context, repos domain.Repositories) (*domain.Order, error)) (*CancelOrderResponse, bool, error) {
	var (
		resp    CancelOrderResponse
		changed bool
		order   *domain.Order
	)
	now := s.now()
	err := s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if order, err = load(ctx, repos); err != nil {
			return err
		}
		wasPaid := order.PaymentStatus == domain.PaymentStatusPaid
		if changed, err = order.Cancel(s.refundPercent, now); err != nil {
			return err
		}
		if !changed {
			resp = CancelOrderResponse{Success: true, Message: "Order is already cancelled", RefundAmount: order.RefundAmount, Order: toOrderDTO(order)}
			return nil
		}
		if wasPaid && order.PaymentRef != "" && order.RefundAmount.IsPositive() {
			if err := s.refund(ctx, order); err != nil {
				return err
			}
		}
		if err := repos.Orders().Update(ctx, order); err != nil {
			return err
		}
		resp = CancelOrderResponse{Success: true, Message: "Order cancelled successfully", RefundAmount: order.RefundAmount, Order: toOrderDTO(order)}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		publishAll(ctx, s.events, []domain.Event{domain.NewEvent(domain.EventOrderCancelled, order.OrderNumber, now, map[string]any{
			"order_number":  order.OrderNumber,
			"user_id":       order.UserID,
			"refund_amount": order.RefundAmount.StringFixed(2),
		})})
	}
	return &resp, changed, nil
}

func (s *OrderService) refund(ctx context.Context, order *domain.Order) error {
	if s.payment == nil {
		return domain.ErrPaymentUnavailable.WithMessage("Refunds are not available right now")
	}
	refundCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.paymentTimeout > 0 {
		refundCtx, cancel = context.WithTimeout(ctx, s.paymentTimeout)
	}
	defer cancel()
	if err := s.payment.Refund(refundCtx, order.PaymentRef, order.RefundAmount); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_number", order.OrderNumber).Msg("refund failed")
		return domain.ErrPaymentFailed.WithMessage("Refund could not be processed, please try again")
	}
	return nil
}

// UpdateStatus 管理端推进订单状态, 取消走与顾客相同的退款流程
func (s *OrderService) UpdateStatus(ctx context.Context, number string, req UpdateStatusRequest) (*OrderDTO, error) {
	ctx, span := s.tracer.Start(ctx, "service.UpdateOrderStatus")
	defer span.End()
	span.SetAttributes(attribute.String("order.number", number), attribute.String("order.status", string(req.Status)))

	load := func(ctx context.Context, repos domain.Repositories) (*domain.Order, error) {
		return repos.Orders().FindByNumber(ctx, number)
	}
	if req.Status == domain.OrderStatusCancelled {
		resp, _, err := s.cancel(ctx, load)
		if err != nil {
			return nil, fail(span, err)
		}
		return &resp.Order, nil
	}

	var dto OrderDTO
	err := s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		order, err := load(ctx, repos)
		if err != nil {
			return err
		}
		if err := order.TransitionTo(req.Status, s.now()); err != nil {
			return err
		}
		if err := repos.Orders().Update(ctx, order); err != nil {
			return err
		}
		dto = toOrderDTO(order)
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}
	return &dto, nil
}
