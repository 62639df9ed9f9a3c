package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"storefront/internal/service/storefront/domain"
	"storefront/internal/service/storefront/domain/port/mocks"
	"storefront/internal/service/storefront/infrastructure/adapter"
	"storefront/internal/service/storefront/infrastructure/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/mock/gomock"
)

var baseTime = time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)

type harness struct {
	t       *testing.T
	store   *memory.Store
	payment *mocks.MockPaymentAuthority

	mu        sync.Mutex
	now       time.Time
	published []domain.Event

	carts    *CartService
	offers   *OfferService
	checkout *CheckoutService
	orders   *OrderService
	admin    *AdminService
	sweeper  *ExpirySweeper
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &harness{t: t, store: memory.NewStore(), now: baseTime}

	events := mocks.NewMockEventPublisher(ctrl)
	events.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e domain.Event) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.published = append(h.published, e)
		return nil
	}).AnyTimes()
	h.payment = mocks.NewMockPaymentAuthority(ctrl)

	locker := adapter.NewLocalLocker()
	tracer := noop.NewTracerProvider().Tracer("test")
	clock := func() time.Time {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.now
	}

	h.sweeper = NewExpirySweeper(h.store, locker, events, tracer, clock)
	h.carts = NewCartService(h.store, locker, events, tracer, clock)
	h.offers = NewOfferService(h.store, locker, events, domain.NewCalculator(nil), tracer, clock)
	h.checkout = NewCheckoutService(h.store, locker, events, h.payment, time.Second, tracer, clock)
	h.orders = NewOrderService(h.store, events, h.payment, time.Second, decimal.NewFromInt(70), tracer, clock)
	h.admin = NewAdminService(h.store, events, nil, h.sweeper, tracer, clock)
	return h
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func (h *harness) events(t domain.EventType) []domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.Event
	for _, e := range h.published {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (h *harness) product(name string, category int64, price string, stock int) int64 {
	return h.store.PutProduct(domain.Product{
		Name: name, CategoryID: category, Price: decimal.RequireFromString(price), Stock: stock, Available: true,
	})
}

// offer 写入一个从 baseTime 前一天到后一周有效的优惠
func (h *harness) offer(o domain.Offer) *domain.Offer {
	h.t.Helper()
	if o.StartDate.IsZero() {
		o.StartDate = baseTime.Add(-24 * time.Hour)
	}
	if o.EndDate.IsZero() {
		o.EndDate = baseTime.Add(7 * 24 * time.Hour)
	}
	if o.Priority == "" {
		o.Priority = domain.PriorityMedium
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = baseTime
	}
	o.IsActive = true
	require.NoError(h.t, h.store.Do(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		return repos.Offers().Create(ctx, &o)
	}))
	return &o
}

func (h *harness) storedOffer(id int64) *domain.Offer {
	h.t.Helper()
	var offer *domain.Offer
	require.NoError(h.t, h.store.Do(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		var err error
		offer, err = repos.Offers().FindByID(ctx, id)
		return err
	}))
	return offer
}

func (h *harness) addItem(userID, productID int64, qty int) {
	h.t.Helper()
	_, err := h.carts.AddItem(context.Background(), userID, AddItemRequest{ProductID: productID, Quantity: qty})
	require.NoError(h.t, err)
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}
