package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/service/storefront/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func flatRequest(code string) CreateOfferRequest {
	return CreateOfferRequest{
		Code:         code,
		Name:         "Flat 100",
		OfferType:    domain.OfferTypeFlat,
		FlatDiscount: ptr(decimal.NewFromInt(100)),
		EndDate:      "2026-06-30",
	}
}

func TestAdminService_CreateOffer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	dto, err := h.admin.CreateOffer(ctx, flatRequest(" save100 "))
	require.NoError(t, err)
	assert.Equal(t, "SAVE100", dto.Code)
	assert.Equal(t, domain.PriorityMedium, dto.Priority)
	assert.True(t, dto.IsActive)
	assert.Equal(t, baseTime, dto.StartDate)
	assert.Equal(t, time.Date(2026, 6, 30, 23, 59, 59, 0, time.UTC), dto.EndDate)
	assert.Equal(t, domain.OfferStatusActive, dto.Status)

	_, err = h.admin.CreateOffer(ctx, flatRequest("SAVE100"))
	assert.True(t, errors.Is(err, domain.ErrDuplicateOfferCode))

	generated, err := h.admin.CreateOffer(ctx, flatRequest(""))
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Z0-9]{8}$`, generated.Code)
}

func TestAdminService_CreateOfferValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := map[string]func(r *CreateOfferRequest){
		"missing name":     func(r *CreateOfferRequest) { r.Name = "" },
		"missing end date": func(r *CreateOfferRequest) { r.EndDate = "" },
		"bad end date":     func(r *CreateOfferRequest) { r.EndDate = "next tuesday" },
		"end before start": func(r *CreateOfferRequest) { r.StartDate = "2026-07-01" },
		"unknown type":     func(r *CreateOfferRequest) { r.OfferType = "bogo" },
		"zero flat":        func(r *CreateOfferRequest) { r.FlatDiscount = ptr(decimal.Zero) },
		"percentage over 100": func(r *CreateOfferRequest) {
			r.OfferType = domain.OfferTypePercentage
			r.DiscountPercentage = ptr(decimal.NewFromInt(120))
		},
		"negative minimum": func(r *CreateOfferRequest) { r.MinOrderValue = ptr(decimal.NewFromInt(-1)) },
		"bad priority":     func(r *CreateOfferRequest) { r.Priority = "urgent" },
		"code with space":  func(r *CreateOfferRequest) { r.Code = "TWO WORDS" },
		"rule without engine": func(r *CreateOfferRequest) {
			r.RuleExpression = "cart.total > 100"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := flatRequest("")
			mutate(&req)
			_, err := h.admin.CreateOffer(ctx, req)
			assert.True(t, errors.Is(err, domain.ErrInvalidRequest), "got %v", err)
		})
	}
}

func TestParseOfferDate(t *testing.T) {
	start, err := parseOfferDate("2026-06-01", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), start)

	end, err := parseOfferDate("2026-06-01", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 1, 23, 59, 59, 0, time.UTC), end)

	local, err := parseOfferDate("2026-06-01T08:30:00", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC), local)

	zoned, err := parseOfferDate("2026-06-01T10:00:00+02:00", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC), zoned)

	_, err = parseOfferDate("06/01/2026", false)
	assert.Error(t, err)
}

// appliedTo 在两个用户的购物车上挂载同一个优惠
func appliedTo(t *testing.T, h *harness) (*domain.Offer, int64) {
	t.Helper()
	p := h.product("Desk", 1, "500", 10)
	offer := h.offer(domain.Offer{Code: "DESK50", Name: "Desk", Type: domain.OfferTypeFlat, FlatDiscount: dec("50"), ProductIDs: []int64{p}})
	for _, user := range []int64{1, 2} {
		h.addItem(user, p, 1)
		_, err := h.offers.ApplyOffer(context.Background(), user, ApplyOfferRequest{OfferID: offer.ID})
		require.NoError(t, err)
	}
	return offer, p
}

func TestAdminService_RevokeOffer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	offer, _ := appliedTo(t, h)

	resp, err := h.admin.RevokeOffer(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.CartsUpdated)
	assert.False(t, resp.Offer.IsActive)
	assert.Equal(t, domain.OfferStatusInactive, resp.Offer.Status)
	assert.Len(t, h.events(domain.EventOfferRevoked), 1)

	cart, err := h.carts.GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, cart.AppliedOffers)

	_, err = h.offers.ApplyOffer(ctx, 1, ApplyOfferRequest{OfferID: offer.ID})
	assert.True(t, errors.Is(err, domain.ErrOfferNotFoundOrInactive))
}

func TestAdminService_UpdateOfferDetachesCarts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	offer, _ := appliedTo(t, h)

	resp, err := h.admin.UpdateOffer(ctx, offer.ID, UpdateOfferRequest{FlatDiscount: ptr(decimal.NewFromInt(80)), Priority: ptr(domain.PriorityHigh)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.CartsUpdated)
	assert.True(t, resp.Offer.FlatDiscount.Equal(dec("80")))
	assert.Equal(t, domain.PriorityHigh, resp.Offer.Priority)
	assert.Equal(t, "DESK50", resp.Offer.Code)

	// 重新挂载后按新的金额计算
	applied, err := h.offers.ApplyOffer(ctx, 1, ApplyOfferRequest{OfferID: offer.ID})
	require.NoError(t, err)
	assert.True(t, applied.DiscountAmount.Equal(dec("80")))

	_, err = h.admin.UpdateOffer(ctx, offer.ID, UpdateOfferRequest{Code: ptr("  ")})
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))

	_, err = h.admin.UpdateOffer(ctx, 999, UpdateOfferRequest{Name: ptr("x")})
	assert.True(t, errors.Is(err, domain.ErrOfferNotFound))
}

func TestAdminService_DeleteOffer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	offer, _ := appliedTo(t, h)

	resp, err := h.admin.DeleteOffer(ctx, offer.ID)
	require.NoError(t, err)
	assert.True(t, resp.Deleted)
	assert.Equal(t, int64(2), resp.CartsUpdated)

	_, err = h.admin.GetOffer(ctx, offer.ID)
	assert.True(t, errors.Is(err, domain.ErrOfferNotFound))
	_, err = h.admin.DeleteOffer(ctx, offer.ID)
	assert.True(t, errors.Is(err, domain.ErrOfferNotFound))

	cart, err := h.carts.GetCart(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, cart.AppliedOffers)
}

func TestAdminService_ListOffers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.offer(domain.Offer{Code: "OLD", Name: "Old", Type: domain.OfferTypeFlat, FlatDiscount: dec("10"), CreatedAt: baseTime.Add(-time.Hour)})
	h.offer(domain.Offer{Code: "NEW", Name: "New", Type: domain.OfferTypeFlat, FlatDiscount: dec("10")})

	offers, err := h.admin.ListOffers(ctx)
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, "NEW", offers[0].Code)
	assert.Equal(t, "OLD", offers[1].Code)
}

func TestAdminService_ReconcileUsage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	offer, _ := appliedTo(t, h)
	_, err := h.checkout.Checkout(ctx, 1, CheckoutRequest{ShippingAddress: "x", PaymentMethod: domain.PaymentMethodCOD})
	require.NoError(t, err)

	require.NoError(t, h.store.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Offers().SetUsage(ctx, offer.ID, 5)
	}))

	stats, err := h.admin.ReconcileUsage(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.OldCount)
	assert.Equal(t, int64(1), stats.UsedCount)
	assert.Len(t, stats.MatchingOrders, 1)
	assert.Equal(t, int64(1), h.storedOffer(offer.ID).UsedCount)

	// 已经一致时不做修改
	stats, err = h.admin.ReconcileUsage(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, stats.OldCount, stats.UsedCount)
}
