package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/service/storefront/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyOffer_ReplacesManualOffer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product("Keyboard", 1, "1200", 10)
	first := h.offer(domain.Offer{Code: "TEN", Name: "Ten", Type: domain.OfferTypePercentage, DiscountPercentage: dec("10"), ProductIDs: []int64{p}})
	second := h.offer(domain.Offer{Code: "FLAT300", Name: "Flat", Type: domain.OfferTypeFlat, FlatDiscount: dec("300"), ProductIDs: []int64{p}})
	h.addItem(1, p, 1)

	resp, err := h.offers.ApplyOffer(ctx, 1, ApplyOfferRequest{OfferID: first.ID})
	require.NoError(t, err)
	assert.True(t, resp.DiscountAmount.Equal(dec("120")))
	assert.Nil(t, resp.ReplacedOfferID)

	resp, err = h.offers.ApplyOffer(ctx, 1, ApplyOfferRequest{Code: "flat300"})
	require.NoError(t, err)
	require.NotNil(t, resp.ReplacedOfferID)
	assert.Equal(t, first.ID, *resp.ReplacedOfferID)
	require.Len(t, resp.Cart.AppliedOffers, 1)
	assert.Equal(t, second.ID, resp.Cart.AppliedOffers[0].OfferID)
	assert.True(t, resp.Cart.FinalTotal.Equal(dec("900")))

	_, err = h.offers.ApplyOffer(ctx, 1, ApplyOfferRequest{OfferID: second.ID})
	assert.True(t, errors.Is(err, domain.ErrAlreadyApplied))

	removed := h.events(domain.EventOfferRemoved)
	require.Len(t, removed, 1)
	assert.Equal(t, "replaced", removed[0].Payload["reason"])
}

func TestApplyOffer_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product("Cable", 1, "300", 10)
	minimum := h.offer(domain.Offer{Code: "BIG", Name: "Big", Type: domain.OfferTypeFlat, FlatDiscount: dec("100"), MinOrderValue: dec("1000"), ProductIDs: []int64{p}})

	_, err := h.offers.ApplyOffer(ctx, 1, ApplyOfferRequest{OfferID: minimum.ID})
	assert.True(t, errors.Is(err, domain.ErrEmptyCart))

	h.addItem(1, p, 1)
	_, err = h.offers.ApplyOffer(ctx, 1, ApplyOfferRequest{OfferID: minimum.ID})
	assert.True(t, errors.Is(err, domain.ErrMinOrderNotMet))

	_, err = h.offers.ApplyOffer(ctx, 1, ApplyOfferRequest{Code: "MISSING"})
	assert.True(t, errors.Is(err, domain.ErrOfferNotFoundOrInactive))

	_, err = h.offers.ApplyOffer(ctx, 1, ApplyOfferRequest{})
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))

	cart, err := h.carts.GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, cart.AppliedOffers)
}

func TestGetCartOffers_AutoAppliesSingleOffer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product("Monitor", 4, "2000", 10)
	low := h.offer(domain.Offer{Code: "AUTO5", Name: "Auto 5", Type: domain.OfferTypeCategory, DiscountPercentage: dec("5"), CategoryIDs: []int64{4}, AutoApply: true, Priority: domain.PriorityLow})
	high := h.offer(domain.Offer{Code: "AUTO10", Name: "Auto 10", Type: domain.OfferTypeCategory, DiscountPercentage: dec("10"), CategoryIDs: []int64{4}, AutoApply: true, Priority: domain.PriorityHigh})
	manual := h.offer(domain.Offer{Code: "MAN", Name: "Manual", Type: domain.OfferTypeFlat, FlatDiscount: dec("50"), ProductIDs: []int64{p}})
	h.addItem(1, p, 1)

	resp, err := h.offers.GetCartOffers(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, resp.AutoApplied)
	assert.Equal(t, high.ID, resp.AutoApplied.OfferID)
	require.Len(t, resp.AppliedOffers, 1)
	assert.True(t, resp.FinalTotal.Equal(dec("1800")))
	require.Len(t, resp.AvailableOffers, 1)
	assert.Equal(t, manual.ID, resp.AvailableOffers[0].ID)
	assert.True(t, resp.AvailableOffers[0].EstimatedDiscount.Equal(dec("50")))

	// 每次读取最多追加一个自动优惠, 多次读取可以累积
	resp, err = h.offers.GetCartOffers(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, resp.AutoApplied)
	assert.Equal(t, low.ID, resp.AutoApplied.OfferID)
	assert.Len(t, resp.AppliedOffers, 2)
	assert.True(t, resp.FinalTotal.Equal(dec("1700")))

	resp, err = h.offers.GetCartOffers(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, resp.AutoApplied)

	_, err = h.offers.ApplyOffer(ctx, 1, ApplyOfferRequest{OfferID: manual.ID})
	require.NoError(t, err)
	resp, err = h.offers.GetCartOffers(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, resp.AvailableOffers)
	assert.Len(t, resp.AppliedOffers, 3)
	assert.True(t, resp.FinalTotal.Equal(dec("1650")))

	_, err = h.offers.RemoveOffer(ctx, 1, high.ID)
	assert.True(t, errors.Is(err, domain.ErrCannotRemoveAutoApply))
	assert.Len(t, h.events(domain.EventOfferApplied), 3)
}

func TestGetCartOffers_DropsExpiredEntries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product("Desk", 2, "5000", 3)
	short := h.offer(domain.Offer{Code: "HOUR", Name: "Hour", Type: domain.OfferTypeFlat, FlatDiscount: dec("500"), ProductIDs: []int64{p}, EndDate: baseTime.Add(time.Hour)})
	h.addItem(1, p, 1)
	_, err := h.offers.ApplyOffer(ctx, 1, ApplyOfferRequest{OfferID: short.ID})
	require.NoError(t, err)

	h.advance(2 * time.Hour)
	resp, err := h.offers.ApplicableOffers(ctx, 1)
	require.NoError(t, err)
	assert.True(t, resp.OffersRemoved)
	assert.Equal(t, "Some expired offers were automatically removed", resp.Message)

	cart, err := h.carts.GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, cart.AppliedOffers)
	assert.True(t, cart.FinalTotal.Equal(dec("5000")))
}

func TestRemoveOffer_NotAppliedIsSuccess(t *testing.T) {
	h := newHarness(t)
	resp, err := h.offers.RemoveOffer(context.Background(), 1, 99)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.False(t, resp.Removed)
	assert.Empty(t, h.events(domain.EventOfferRemoved))
}

func TestApplyOffer_FirstTimeOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product("Chair", 2, "1000", 10)
	welcome := h.offer(domain.Offer{Code: "WELCOME", Name: "Welcome", Type: domain.OfferTypeFirstTime, DiscountPercentage: dec("20")})

	h.addItem(1, p, 1)
	resp, err := h.offers.ApplyOffer(ctx, 1, ApplyOfferRequest{OfferID: welcome.ID})
	require.NoError(t, err)
	assert.True(t, resp.DiscountAmount.Equal(dec("200")))
	_, err = h.checkout.Checkout(ctx, 1, CheckoutRequest{ShippingAddress: "home", PaymentMethod: domain.PaymentMethodCOD})
	require.NoError(t, err)

	h.addItem(1, p, 1)
	_, err = h.offers.ApplyOffer(ctx, 1, ApplyOfferRequest{OfferID: welcome.ID})
	assert.True(t, errors.Is(err, domain.ErrFirstTimeOnlyViolation))
}

func TestValidateCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product("Lamp", 2, "400", 10)
	h.offer(domain.Offer{Code: "LAMP50", Name: "Lamp", Type: domain.OfferTypeFlat, FlatDiscount: dec("50"), MinOrderValue: dec("500"), ProductIDs: []int64{p}})

	resp, err := h.offers.ValidateCode(ctx, 0, "lamp50")
	require.NoError(t, err)
	assert.True(t, resp.Valid)

	h.addItem(1, p, 1)
	resp, err = h.offers.ValidateCode(ctx, 1, "LAMP50")
	require.NoError(t, err)
	assert.False(t, resp.Valid)
	assert.Contains(t, resp.Message, "Minimum order value")

	h.addItem(1, p, 1)
	resp, err = h.offers.ValidateCode(ctx, 1, "LAMP50")
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.True(t, resp.DiscountAmount.Equal(dec("50")))

	cart, err := h.carts.GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, cart.AppliedOffers, "validation must not touch the ledger")
}

func TestAddItem_ClearsLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product("Pen", 1, "100", 3)
	o := h.offer(domain.Offer{Code: "PEN", Name: "Pen", Type: domain.OfferTypeFlat, FlatDiscount: dec("10"), ProductIDs: []int64{p}})
	h.addItem(1, p, 1)
	_, err := h.offers.ApplyOffer(ctx, 1, ApplyOfferRequest{OfferID: o.ID})
	require.NoError(t, err)

	cart, err := h.carts.AddItem(ctx, 1, AddItemRequest{ProductID: p, Quantity: 1})
	require.NoError(t, err)
	assert.Empty(t, cart.AppliedOffers)
	removed := h.events(domain.EventOfferRemoved)
	require.Len(t, removed, 1)
	assert.Equal(t, "cart_changed", removed[0].Payload["reason"])

	_, err = h.carts.AddItem(ctx, 1, AddItemRequest{ProductID: p, Quantity: 2})
	assert.True(t, errors.Is(err, domain.ErrProductUnavailable))
}
