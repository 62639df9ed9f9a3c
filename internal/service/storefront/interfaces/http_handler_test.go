package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"storefront/internal/service/storefront/application"
	"storefront/internal/service/storefront/domain"
	"storefront/internal/service/storefront/infrastructure/adapter"
	"storefront/internal/service/storefront/infrastructure/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

var fixedNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	locker := adapter.NewLocalLocker()
	events := adapter.NoopPublisher{}
	tracer := noop.NewTracerProvider().Tracer("test")
	clock := func() time.Time { return fixedNow }

	sweeper := application.NewExpirySweeper(store, locker, events, tracer, clock)
	h := NewStorefrontHandler(
		application.NewCartService(store, locker, events, tracer, clock),
		application.NewOfferService(store, locker, events, domain.NewCalculator(nil), tracer, clock),
		application.NewCheckoutService(store, locker, events, nil, time.Second, tracer, clock),
		application.NewOrderService(store, events, nil, time.Second, decimal.NewFromInt(100), tracer, clock),
		application.NewAdminService(store, events, nil, sweeper, tracer, clock),
	)
	return &fixture{store: store, handler: h.Router()}
}

func (f *fixture) do(t *testing.T, method, path string, userID int64, admin bool, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		req.Header.Set(HeaderUserID, strconv.FormatInt(userID, 10))
	}
	if admin {
		req.Header.Set(HeaderUserRole, "admin")
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestStorefront_ApplyCodeAndCheckout(t *testing.T) {
	f := newFixture(t)
	productID := f.store.PutProduct(domain.Product{Name: "Headphones", CategoryID: 3, Price: decimal.NewFromInt(1500), Stock: 5, Available: true})

	w := f.do(t, http.MethodPost, "/api/admin/offers", 1, true, map[string]any{
		"code":            "save200",
		"name":            "Save 200",
		"offer_type":      "flat_discount",
		"flat_discount":   "200",
		"min_order_value": "1000",
		"product_ids":     []int64{productID},
		"end_date":        "2026-12-31",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody[application.OfferDTO](t, w)
	assert.Equal(t, "SAVE200", created.Code)
	assert.Equal(t, domain.OfferStatusActive, created.Status)

	const user = 42
	w = f.do(t, http.MethodPost, "/api/cart/items", user, false, application.AddItemRequest{ProductID: productID, Quantity: 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/cart/offers/apply", user, false, application.ApplyOfferRequest{Code: "save200"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	applied := decodeBody[application.ApplyOfferResponse](t, w)
	assert.True(t, applied.Success)
	assert.True(t, applied.DiscountAmount.Equal(decimal.NewFromInt(200)))
	assert.True(t, applied.Cart.FinalTotal.Equal(decimal.NewFromInt(1300)))

	w = f.do(t, http.MethodPost, "/api/checkout", user, false, application.CheckoutRequest{
		ShippingAddress: "221B Baker Street",
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	placed := decodeBody[application.CheckoutResponse](t, w)
	assert.True(t, placed.FinalAmount.Equal(decimal.NewFromInt(1300)))

	w = f.do(t, http.MethodGet, "/api/cart", user, false, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cart := decodeBody[application.CartDTO](t, w)
	assert.Empty(t, cart.Items)
	assert.Empty(t, cart.AppliedOffers)

	w = f.do(t, http.MethodGet, "/api/admin/offers/"+strconv.FormatInt(created.ID, 10), 1, true, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), decodeBody[application.OfferDTO](t, w).UsedCount)

	w = f.do(t, http.MethodGet, "/api/orders/"+placed.OrderNumber, user, false, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodGet, "/api/orders/"+placed.OrderNumber, user+1, false, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStorefront_ErrorMapping(t *testing.T) {
	f := newFixture(t)
	productID := f.store.PutProduct(domain.Product{Name: "Mug", Price: decimal.NewFromInt(300), Stock: 1, Available: true})

	tests := []struct {
		name   string
		method string
		path   string
		user   int64
		admin  bool
		body   any
		status int
		code   string
	}{
		{"anonymous cart", http.MethodGet, "/api/cart", 0, false, nil, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED"},
		{"non admin", http.MethodGet, "/api/admin/offers", 7, false, nil, http.StatusForbidden, "ADMIN_REQUIRED"},
		{"empty cart apply", http.MethodPost, "/api/cart/offers/apply", 7, false, application.ApplyOfferRequest{Code: "NOPE"}, http.StatusBadRequest, "EMPTY_CART"},
		{"over stock", http.MethodPost, "/api/cart/items", 7, false, application.AddItemRequest{ProductID: productID, Quantity: 2}, http.StatusBadRequest, "PRODUCT_UNAVAILABLE"},
		{"unknown product", http.MethodPost, "/api/cart/items", 7, false, application.AddItemRequest{ProductID: 999, Quantity: 1}, http.StatusNotFound, "PRODUCT_NOT_FOUND"},
		{"bad path id", http.MethodGet, "/api/admin/offers/abc", 1, true, nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing offer", http.MethodDelete, "/api/admin/offers/12345", 1, true, nil, http.StatusNotFound, "OFFER_NOT_FOUND"},
		{"invalid offer", http.MethodPost, "/api/admin/offers", 1, true, map[string]any{"offer_type": "bogus"}, http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.path, tt.user, tt.admin, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decodeBody[errorBody](t, w).Code)
		})
	}
}

func TestStorefront_PublicOffers(t *testing.T) {
	f := newFixture(t)
	f.store.PutProduct(domain.Product{ID: 77, Name: "Lamp", CategoryID: 9, Price: decimal.NewFromInt(900), Stock: 2, Available: true})
	require.NoError(t, f.store.Do(t.Context(), func(ctx context.Context, repos domain.Repositories) error {
		return repos.Offers().Create(ctx, &domain.Offer{
			Code: "WELCOME10", Name: "Welcome", Type: domain.OfferTypePercentage,
			DiscountPercentage: decimal.NewFromInt(10), IsActive: true, Priority: domain.PriorityMedium,
			StartDate: fixedNow.Add(-time.Hour), EndDate: fixedNow.Add(time.Hour),
		})
	}))

	w := f.do(t, http.MethodGet, "/api/offers/active", 0, false, nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decodeBody[struct {
		Offers []application.OfferDTO `json:"offers"`
	}](t, w)
	require.Len(t, listed.Offers, 1)
	assert.Equal(t, "WELCOME10", listed.Offers[0].Code)

	w = f.do(t, http.MethodPost, "/api/offers/validate", 0, false, map[string]string{"code": "welcome10"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeBody[application.ValidateCodeResponse](t, w).Valid)

	w = f.do(t, http.MethodGet, "/api/products/77/offers", 0, false, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "WELCOME10")
}

func TestIdentify_IgnoresMalformedHeader(t *testing.T) {
	var got Identity
	h := Identify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFrom(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "-3")
	req.Header.Set(HeaderUserRole, "admin")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, Identity{}, got)
}
