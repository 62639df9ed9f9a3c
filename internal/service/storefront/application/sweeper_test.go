package application

import (
	"context"
	"testing"
	"time"

	"storefront/internal/service/storefront/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpirySweeper_DeletesExpiredOffers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product("Desk", 1, "500", 10)
	short := h.offer(domain.Offer{Code: "SHORT", Name: "Short", Type: domain.OfferTypeFlat, FlatDiscount: dec("50"),
		ProductIDs: []int64{p}, EndDate: baseTime.Add(time.Hour), AutoApply: true})
	long := h.offer(domain.Offer{Code: "LONG", Name: "Long", Type: domain.OfferTypeFlat, FlatDiscount: dec("20"), ProductIDs: []int64{p}})
	h.addItem(1, p, 1)
	for _, o := range []*domain.Offer{short, long} {
		_, err := h.offers.ApplyOffer(ctx, 1, ApplyOfferRequest{OfferID: o.ID})
		require.NoError(t, err)
	}

	// 结束时间本身已经不在有效期内
	h.advance(time.Hour)
	result, err := h.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{ExpiredOffersDeleted: 1, CartsUpdated: 1}, result)
	assert.Len(t, h.events(domain.EventOffersExpired), 1)

	_, err = h.admin.GetOffer(ctx, short.ID)
	assert.ErrorIs(t, err, domain.ErrOfferNotFound)
	cart, err := h.carts.GetCart(ctx, 1)
	require.NoError(t, err)
	require.Len(t, cart.AppliedOffers, 1)
	assert.Equal(t, long.ID, cart.AppliedOffers[0].OfferID)
	assert.True(t, cart.FinalTotal.Equal(dec("480")))

	again, err := h.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, again)
	assert.Len(t, h.events(domain.EventOffersExpired), 1)
}

func TestExpirySweeper_ReconcilesInactiveOffers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product("Desk", 1, "500", 10)
	offer := h.offer(domain.Offer{Code: "DESK", Name: "Desk", Type: domain.OfferTypeFlat, FlatDiscount: dec("50"), ProductIDs: []int64{p}})
	h.addItem(1, p, 1)
	_, err := h.offers.ApplyOffer(ctx, 1, ApplyOfferRequest{OfferID: offer.ID})
	require.NoError(t, err)

	// 绕过管理端直接停用, 账本里仍留着这条记录
	require.NoError(t, h.store.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		stored, err := repos.Offers().FindByID(ctx, offer.ID)
		if err != nil {
			return err
		}
		stored.IsActive = false
		return repos.Offers().Update(ctx, stored)
	}))

	result, err := h.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.ExpiredOffersDeleted)
	assert.Equal(t, int64(1), result.CartsUpdated)
	assert.Len(t, h.events(domain.EventOfferRemoved), 1)
	assert.Equal(t, "DESK", h.storedOffer(offer.ID).Code)

	cart, err := h.carts.GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, cart.AppliedOffers)
}

func TestAdminService_CleanupExpiredUsesSweeper(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.offer(domain.Offer{Code: "GONE", Name: "Gone", Type: domain.OfferTypeFlat, FlatDiscount: dec("5"), EndDate: baseTime})

	result, err := h.admin.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.ExpiredOffersDeleted)
	assert.Equal(t, int64(0), result.CartsUpdated)
}

func TestExpirySweeper_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	h.offer(domain.Offer{Code: "GONE", Name: "Gone", Type: domain.OfferTypeFlat, FlatDiscount: dec("5"), EndDate: baseTime})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.sweeper.Run(ctx, 10*time.Millisecond, 10*time.Millisecond) }()

	assert.Eventually(t, func() bool {
		return len(h.events(domain.EventOffersExpired)) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
