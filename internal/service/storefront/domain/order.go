package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus 订单状态。pending -> confirmed -> shipped -> delivered, pending/confirmed -> cancelled。
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentStatus 支付状态
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

const PaymentMethodCOD = "cash_on_delivery"

// OrderItem 订单行, 价格是下单时刻的快照。
type OrderItem struct {
	ID             int64
	ProductID      int64
	ProductName    string
	Quantity       int
	UnitPrice      decimal.Decimal
	FreeQuantity   int
	DiscountAmount decimal.Decimal
}

// Order 订单聚合根。除 Status 外创建后不可变。
type Order struct {
	ID              int64
	OrderNumber     string
	UserID          int64
	TotalAmount     decimal.Decimal
	DiscountAmount  decimal.Decimal
	FinalAmount     decimal.Decimal
	AppliedOffers   []AppliedOffer
	Items           []OrderItem
	Status          OrderStatus
	ShippingAddress string
	PaymentMethod   string
	PaymentStatus   PaymentStatus
	PaymentRef      string
	RefundAmount    decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewOrderNumber 生成形如 ORD-1A2B3C4D 的订单号。
func NewOrderNumber() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(raw[:8])
}

// PlaceOrder 从购物车冻结出一张订单。购物车应已完成过期优惠清理。
func PlaceOrder(cart *Cart, number, address, paymentMethod string, now time.Time) *Order {
	total := cart.TotalPrice()
	final := cart.FinalTotal()

	// 账本中的分摊信息按商品汇总到订单行
	shares := make(map[int64]FreeItem)
	for _, entry := range cart.Ledger.Entries() {
		for _, fi := range entry.FreeItems {
			acc := shares[fi.ProductID]
			acc.FreeQuantity += fi.FreeQuantity
			acc.DiscountAmount = acc.DiscountAmount.Add(fi.DiscountAmount)
			shares[fi.ProductID] = acc
		}
	}

	items := make([]OrderItem, 0, len(cart.Items))
	for _, ci := range cart.Items {
		share := shares[ci.Product.ID]
		items = append(items, OrderItem{
			ProductID:      ci.Product.ID,
			ProductName:    ci.Product.Name,
			Quantity:       ci.Quantity,
			UnitPrice:      ci.Product.Price,
			FreeQuantity:   share.FreeQuantity,
			DiscountAmount: share.DiscountAmount,
		})
	}

	return &Order{
		OrderNumber:     number,
		UserID:          cart.UserID,
		TotalAmount:     total,
		DiscountAmount:  total.Sub(final),
		FinalAmount:     final,
		AppliedOffers:   cart.Ledger.Entries(),
		Items:           items,
		Status:          OrderStatusPending,
		ShippingAddress: address,
		PaymentMethod:   paymentMethod,
		PaymentStatus:   PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// TransitionTo 按状态机推进订单状态。
func (o *Order) TransitionTo(to OrderStatus, now time.Time) error {
	if !to.Valid() {
		return ErrInvalidStatusTransition.WithMessage("Unknown order status %q", to)
	}
	if o.Status == to {
		return nil
	}
	if !o.Status.CanTransitionTo(to) {
		return ErrInvalidStatusTransition.WithMessage("Cannot change order status from %s to %s", o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

// Cancel 取消订单并按比例计算退款。已取消的订单再次取消不做任何改变, changed 返回 false。
func (o *Order) Cancel(refundPercent decimal.Decimal, now time.Time) (changed bool, err error) {
	if o.Status == OrderStatusCancelled {
		return false, nil
	}
	if o.Status != OrderStatusPending && o.Status != OrderStatusConfirmed {
		return false, ErrOrderNotCancellable.WithMessage("Order %s cannot be cancelled with status %s", o.OrderNumber, o.Status)
	}
	o.Status = OrderStatusCancelled
	o.RefundAmount = o.FinalAmount.Mul(refundPercent).Div(hundred).Round(2)
	if o.PaymentStatus == PaymentStatusPaid {
		o.PaymentStatus = PaymentStatusRefunded
	}
	o.UpdatedAt = now
	return true, nil
}

// ReferencesOffer 订单快照中是否包含该优惠。
func (o *Order) ReferencesOffer(offerID int64) bool {
	for _, e := range o.AppliedOffers {
		if e.OfferID == offerID {
			return true
		}
	}
	return false
}
