package application

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/service/storefront/domain"
	"storefront/internal/service/storefront/domain/port"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// paidOrder 用卡支付下一个 900 的订单
func (h *harness) paidOrder(userID int64, intentID string) string {
	h.t.Helper()
	p := h.product("Phone", 1, "900", 5)
	h.addItem(userID, p, 1)
	h.payment.EXPECT().CreateIntent(gomock.Any(), gomock.Any()).Return(&port.PaymentIntent{ID: intentID}, nil)
	h.payment.EXPECT().Confirm(gomock.Any(), intentID).Return(nil)
	resp, err := h.checkout.Checkout(context.Background(), userID, CheckoutRequest{ShippingAddress: "x", PaymentMethod: "card"})
	require.NoError(h.t, err)
	return resp.OrderNumber
}

func TestOrderService_CancelRefundsPaidOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	number := h.paidOrder(1, "pi_10")

	h.payment.EXPECT().Refund(gomock.Any(), "pi_10", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, amount decimal.Decimal) error {
			assert.True(t, amount.Equal(dec("630")))
			return nil
		})

	resp, err := h.orders.Cancel(ctx, 1, number)
	require.NoError(t, err)
	assert.True(t, resp.RefundAmount.Equal(dec("630")))
	assert.Equal(t, domain.OrderStatusCancelled, resp.Order.Status)
	assert.Equal(t, "Order cancelled successfully", resp.Message)
	assert.Len(t, h.events(domain.EventOrderCancelled), 1)

	// 第二次取消不再退款
	again, err := h.orders.Cancel(ctx, 1, number)
	require.NoError(t, err)
	assert.Equal(t, "Order is already cancelled", again.Message)
	assert.True(t, again.RefundAmount.Equal(dec("630")))
	assert.Len(t, h.events(domain.EventOrderCancelled), 1)
}

func TestOrderService_RefundFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	number := h.paidOrder(1, "pi_11")

	h.payment.EXPECT().Refund(gomock.Any(), "pi_11", gomock.Any()).Return(errors.New("gateway down"))

	_, err := h.orders.Cancel(ctx, 1, number)
	assert.True(t, errors.Is(err, domain.ErrPaymentFailed))

	order, err := h.orders.Detail(ctx, 1, number)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Empty(t, h.events(domain.EventOrderCancelled))
}

func TestOrderService_CashOrderCancelsWithoutRefundCall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product("Lamp", 1, "400", 3)
	h.addItem(1, p, 1)
	placed, err := h.checkout.Checkout(ctx, 1, CheckoutRequest{ShippingAddress: "x", PaymentMethod: domain.PaymentMethodCOD})
	require.NoError(t, err)

	resp, err := h.orders.Cancel(ctx, 1, placed.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, resp.Order.Status)
}

func TestOrderService_OwnershipAndHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product("Lamp", 1, "400", 3)
	h.addItem(1, p, 1)
	placed, err := h.checkout.Checkout(ctx, 1, CheckoutRequest{ShippingAddress: "x", PaymentMethod: domain.PaymentMethodCOD})
	require.NoError(t, err)

	_, err = h.orders.Detail(ctx, 2, placed.OrderNumber)
	assert.True(t, errors.Is(err, domain.ErrOrderNotFound))
	_, err = h.orders.Cancel(ctx, 2, placed.OrderNumber)
	assert.True(t, errors.Is(err, domain.ErrOrderNotFound))

	history, err := h.orders.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, placed.OrderNumber, history[0].OrderNumber)

	others, err := h.orders.History(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestOrderService_UpdateStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product("Lamp", 1, "400", 3)
	h.addItem(1, p, 1)
	placed, err := h.checkout.Checkout(ctx, 1, CheckoutRequest{ShippingAddress: "x", PaymentMethod: domain.PaymentMethodCOD})
	require.NoError(t, err)
	number := placed.OrderNumber

	order, err := h.orders.UpdateStatus(ctx, number, UpdateStatusRequest{Status: domain.OrderStatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, order.Status)

	_, err = h.orders.UpdateStatus(ctx, number, UpdateStatusRequest{Status: domain.OrderStatusDelivered})
	assert.True(t, errors.Is(err, domain.ErrInvalidStatusTransition))

	order, err = h.orders.UpdateStatus(ctx, number, UpdateStatusRequest{Status: domain.OrderStatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, order.Status)

	_, err = h.orders.UpdateStatus(ctx, "ORD-MISSING", UpdateStatusRequest{Status: domain.OrderStatusShipped})
	assert.True(t, errors.Is(err, domain.ErrOrderNotFound))
}
