package saga

import (
	"context"
	"sync"
	"time"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/storefront/domain"
	"storefront/internal/service/storefront/domain/port"

	"go.opentelemetry.io/otel/trace"
)

// CheckoutContext 在结算责任链中传递数据, 所有外部依赖都是端口
type CheckoutContext struct {
	Ctx    context.Context
	Tracer trace.Tracer
	Now    time.Time

	UserID          int64
	ShippingAddress string
	PaymentMethod   string
	PaymentDetails  map[string]string

	UoW            domain.UnitOfWork
	Payment        port.PaymentAuthority
	Events         port.EventPublisher
	PaymentTimeout time.Duration

	// Order 由 PrepareHandler 生成, SettlementHandler 落库后带上 ID
	Order     *domain.Order
	PaymentID string

	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

// AddCompensation 后注册的补偿先执行
func (c *CheckoutContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

func (c *CheckoutContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	if len(c.compensations) == 0 {
		return
	}
	logger.Ctx(ctx).Warn().Int64("user_id", c.UserID).Int("compensations", len(c.compensations)).Msg("executing checkout compensations")
	for _, comp := range c.compensations {
		comp(ctx)
	}
	c.compensations = nil
}

// withPaymentTimeout 支付机构的每次调用都有独立超时, 超时视为失败
func (c *CheckoutContext) withPaymentTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.PaymentTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.PaymentTimeout)
}

type Handler interface {
	SetNext(handler Handler) Handler
	Handle(checkoutCtx *CheckoutContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(checkoutCtx *CheckoutContext) error {
	if h.next != nil {
		return h.next.Handle(checkoutCtx)
	}
	return nil
}
