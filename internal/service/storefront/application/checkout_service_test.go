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

func TestCheckout_ClearsStateAndCountsUsage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.product("Shoes", 1, "1000", 5)
	b := h.product("Socks", 2, "500", 1)
	offer := h.offer(domain.Offer{Code: "SAVE200", Name: "Save", Type: domain.OfferTypeFlat, FlatDiscount: dec("200"), MinOrderValue: dec("1000"), ProductIDs: []int64{a, b}})
	h.addItem(1, a, 1)
	h.addItem(1, b, 1)
	_, err := h.offers.ApplyOffer(ctx, 1, ApplyOfferRequest{OfferID: offer.ID})
	require.NoError(t, err)
	before, err := h.carts.GetCart(ctx, 1)
	require.NoError(t, err)

	resp, err := h.checkout.Checkout(ctx, 1, CheckoutRequest{ShippingAddress: "street 1", PaymentMethod: domain.PaymentMethodCOD})
	require.NoError(t, err)
	assert.True(t, resp.FinalAmount.Equal(before.FinalTotal))
	assert.True(t, resp.FinalAmount.Equal(dec("1300")))
	assert.True(t, resp.DiscountAmount.Equal(dec("200")))
	assert.Equal(t, domain.OrderStatusPending, resp.Status)

	after, err := h.carts.GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, after.Items)
	assert.Empty(t, after.AppliedOffers)
	assert.Equal(t, int64(1), h.storedOffer(offer.ID).UsedCount)

	order, err := h.orders.Detail(ctx, 1, resp.OrderNumber)
	require.NoError(t, err)
	require.Len(t, order.Items, 2)
	require.Len(t, order.AppliedOffers, 1)
	assert.Len(t, h.events(domain.EventOrderPlaced), 1)

	// 库存扣到 0 的商品自动下架
	_, err = h.carts.AddItem(ctx, 2, AddItemRequest{ProductID: b, Quantity: 1})
	assert.True(t, errors.Is(err, domain.ErrProductUnavailable))
}

func TestCheckout_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.checkout.Checkout(ctx, 1, CheckoutRequest{PaymentMethod: domain.PaymentMethodCOD})
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))

	_, err = h.checkout.Checkout(ctx, 1, CheckoutRequest{ShippingAddress: "x", PaymentMethod: domain.PaymentMethodCOD})
	assert.True(t, errors.Is(err, domain.ErrEmptyCart))
}

func TestCheckout_PaidOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product("Phone", 1, "900", 2)
	h.addItem(1, p, 1)

	h.payment.EXPECT().CreateIntent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req port.PaymentIntentRequest) (*port.PaymentIntent, error) {
			assert.True(t, req.Amount.Equal(dec("900")))
			assert.Equal(t, "card", req.Method)
			return &port.PaymentIntent{ID: "pi_1", Status: "requires_confirmation"}, nil
		})
	h.payment.EXPECT().Confirm(gomock.Any(), "pi_1").Return(nil)

	resp, err := h.checkout.Checkout(ctx, 1, CheckoutRequest{ShippingAddress: "x", PaymentMethod: "card"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, resp.PaymentStatus)
}

func TestCheckout_PaymentFailureKeepsCart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product("Phone", 1, "900", 2)
	h.addItem(1, p, 1)

	h.payment.EXPECT().CreateIntent(gomock.Any(), gomock.Any()).Return(&port.PaymentIntent{ID: "pi_2"}, nil)
	h.payment.EXPECT().Confirm(gomock.Any(), "pi_2").Return(errors.New("card declined"))

	_, err := h.checkout.Checkout(ctx, 1, CheckoutRequest{ShippingAddress: "x", PaymentMethod: "card"})
	assert.True(t, errors.Is(err, domain.ErrPaymentFailed))

	cart, err := h.carts.GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
	orders, err := h.orders.History(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCheckout_RefundsWhenSettlementFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product("Phone", 1, "900", 2)
	h.addItem(1, p, 1)

	h.payment.EXPECT().CreateIntent(gomock.Any(), gomock.Any()).Return(&port.PaymentIntent{ID: "pi_3"}, nil)
	h.payment.EXPECT().Confirm(gomock.Any(), "pi_3").DoAndReturn(func(context.Context, string) error {
		// 支付期间商品从目录下线, 结算阶段重新校验时失败
		h.store.RemoveProduct(p)
		return nil
	})
	h.payment.EXPECT().Refund(gomock.Any(), "pi_3", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, amount decimal.Decimal) error {
			assert.True(t, amount.Equal(dec("900")))
			return nil
		})

	_, err := h.checkout.Checkout(ctx, 1, CheckoutRequest{ShippingAddress: "x", PaymentMethod: "card"})
	assert.True(t, errors.Is(err, domain.ErrProductNotFound))

	orders, err := h.orders.History(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, h.events(domain.EventOrderPlaced))
}

func TestCheckout_RefundsWhenOfferDeletedDuringPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product("Shoes", 1, "1000", 2)
	offer := h.offer(domain.Offer{Code: "SAVE200", Name: "Save", Type: domain.OfferTypeFlat, FlatDiscount: dec("200"), ProductIDs: []int64{p}})
	h.addItem(1, p, 1)
	_, err := h.offers.ApplyOffer(ctx, 1, ApplyOfferRequest{OfferID: offer.ID})
	require.NoError(t, err)

	h.payment.EXPECT().CreateIntent(gomock.Any(), gomock.Any()).Return(&port.PaymentIntent{ID: "pi_4"}, nil)
	h.payment.EXPECT().Confirm(gomock.Any(), "pi_4").DoAndReturn(func(ctx context.Context, _ string) error {
		// 支付期间管理端删除了已挂载的优惠, 结算时金额与冻结的草稿不一致
		return h.store.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
			_, err := repos.Offers().Delete(ctx, offer.ID)
			return err
		})
	})
	h.payment.EXPECT().Refund(gomock.Any(), "pi_4", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, amount decimal.Decimal) error {
			assert.True(t, amount.Equal(dec("800")), "refund %s", amount)
			return nil
		})

	_, err = h.checkout.Checkout(ctx, 1, CheckoutRequest{ShippingAddress: "x", PaymentMethod: "card"})
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest), "got %v", err)

	orders, err := h.orders.History(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, h.events(domain.EventOrderPlaced))

	cart, err := h.carts.GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
	assert.Empty(t, cart.AppliedOffers)
	assert.True(t, cart.FinalTotal.Equal(dec("1000")))
}
