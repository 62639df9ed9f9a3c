package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOffer_ValidityWindowIsHalfOpen(t *testing.T) {
	offer := liveOffer(1, OfferTypeFlat)
	offer.StartDate = now
	offer.EndDate = now.Add(time.Hour)

	assert.True(t, offer.IsValid(now))
	assert.False(t, offer.IsValid(now.Add(-time.Nanosecond)))
	assert.True(t, offer.IsValid(offer.EndDate.Add(-time.Nanosecond)))
	assert.False(t, offer.IsValid(offer.EndDate))
	assert.True(t, offer.IsExpired(offer.EndDate))
}

func TestOffer_Status(t *testing.T) {
	offer := liveOffer(1, OfferTypeFlat)
	assert.Equal(t, OfferStatusActive, offer.Status(now))
	assert.Equal(t, OfferStatusScheduled, offer.Status(offer.StartDate.Add(-time.Minute)))
	assert.Equal(t, OfferStatusExpired, offer.Status(offer.EndDate))
	offer.IsActive = false
	assert.Equal(t, OfferStatusInactive, offer.Status(now))
}

func TestOffer_AppliesToProduct(t *testing.T) {
	offer := liveOffer(1, OfferTypePercentage)
	assert.True(t, offer.AppliesToProduct(1, 2), "no scope is visible everywhere")

	offer.CategoryIDs = []int64{2}
	assert.True(t, offer.AppliesToProduct(1, 2))
	assert.False(t, offer.AppliesToProduct(1, 3))
	assert.False(t, offer.AppliesToProduct(1, 0))
}

func TestOffer_BadgeText(t *testing.T) {
	offer := liveOffer(1, OfferTypePercentage)
	offer.DiscountPercentage = dec("12.5")
	assert.Equal(t, "12.5% OFF", offer.BadgeText())

	offer.Type, offer.FlatDiscount = OfferTypeFlat, dec("200")
	assert.Equal(t, "Rs.200 OFF", offer.BadgeText())

	offer.BadgeOverride = "Summer sale"
	assert.Equal(t, "Summer sale", offer.BadgeText())
}

func TestSortForAutoApply(t *testing.T) {
	low := liveOffer(1, OfferTypeFlat)
	low.Priority = PriorityLow
	older := liveOffer(2, OfferTypeFlat)
	older.Priority, older.CreatedAt = PriorityHigh, now.Add(-time.Hour)
	newer := liveOffer(3, OfferTypeFlat)
	newer.Priority, newer.CreatedAt = PriorityHigh, now

	offers := []*Offer{low, older, newer}
	SortForAutoApply(offers)
	assert.Equal(t, []int64{3, 2, 1}, []int64{offers[0].ID, offers[1].ID, offers[2].ID})
}
