package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cartWithOffer(t *testing.T) *Cart {
	t.Helper()
	cart := NewCart(7, now)
	require.NoError(t, cart.AddItem(Product{ID: 1, Name: "a", Price: dec("600"), Stock: 4, Available: true}, 1, now))
	require.NoError(t, cart.AddItem(Product{ID: 2, Name: "b", Price: dec("200"), Stock: 4, Available: true}, 2, now))
	cart.Ledger = NewLedger([]AppliedOffer{{
		OfferID: 9, DiscountAmount: dec("100"),
		FreeItems: []FreeItem{{ProductID: 1, DiscountAmount: dec("60")}, {ProductID: 2, DiscountAmount: dec("40")}},
	}})
	return cart
}

func TestPlaceOrder_SnapshotsCart(t *testing.T) {
	cart := cartWithOffer(t)
	order := PlaceOrder(cart, "ORD-TEST", "addr", PaymentMethodCOD, now)

	assert.True(t, order.TotalAmount.Equal(dec("1000")))
	assert.True(t, order.DiscountAmount.Equal(dec("100")))
	assert.True(t, order.FinalAmount.Equal(cart.FinalTotal()))
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Equal(t, PaymentStatusPending, order.PaymentStatus)
	require.Len(t, order.Items, 2)
	assert.True(t, order.Items[0].DiscountAmount.Equal(dec("60")))
	assert.True(t, order.Items[1].UnitPrice.Equal(dec("200")))
	assert.True(t, order.ReferencesOffer(9))
	assert.False(t, order.ReferencesOffer(10))
}

func TestOrder_Cancel(t *testing.T) {
	order := PlaceOrder(cartWithOffer(t), "ORD-TEST", "addr", "card", now)
	order.PaymentStatus = PaymentStatusPaid

	changed, err := order.Cancel(dec("70"), now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, order.RefundAmount.Equal(dec("630")), order.RefundAmount.String())
	assert.Equal(t, PaymentStatusRefunded, order.PaymentStatus)

	changed, err = order.Cancel(dec("70"), now)
	require.NoError(t, err)
	assert.False(t, changed)

	shipped := PlaceOrder(cartWithOffer(t), "ORD-SHIP", "addr", "card", now)
	require.NoError(t, shipped.TransitionTo(OrderStatusConfirmed, now))
	require.NoError(t, shipped.TransitionTo(OrderStatusShipped, now))
	_, err = shipped.Cancel(dec("70"), now)
	assert.True(t, errors.Is(err, ErrOrderNotCancellable))
}

func TestOrder_TransitionTo(t *testing.T) {
	order := &Order{Status: OrderStatusPending}
	assert.NoError(t, order.TransitionTo(OrderStatusPending, now))
	assert.True(t, errors.Is(order.TransitionTo(OrderStatusDelivered, now), ErrInvalidStatusTransition))
	assert.True(t, errors.Is(order.TransitionTo("lost", now), ErrInvalidStatusTransition))
	assert.NoError(t, order.TransitionTo(OrderStatusConfirmed, now))
	assert.Equal(t, OrderStatusConfirmed, order.Status)
}

func TestNewOrderNumber(t *testing.T) {
	n := NewOrderNumber()
	assert.Regexp(t, `^ORD-[0-9A-F]{8}$`, n)
	assert.NotEqual(t, n, NewOrderNumber())
}
