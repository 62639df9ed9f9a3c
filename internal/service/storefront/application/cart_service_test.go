package application

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/service/storefront/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartService_ItemLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pen := h.product("Pen", 1, "100", 5)
	ink := h.product("Ink", 1, "40.50", 5)

	empty, err := h.carts.GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.True(t, empty.FinalTotal.IsZero())

	h.addItem(1, pen, 2)
	h.addItem(1, pen, 1)
	cart, err := h.carts.AddItem(ctx, 1, AddItemRequest{ProductID: ink, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, 5, cart.ItemCount)
	assert.True(t, cart.TotalPrice.Equal(dec("381")))

	cart, err = h.carts.UpdateItem(ctx, 1, ink, UpdateItemRequest{Quantity: 1})
	require.NoError(t, err)
	assert.True(t, cart.TotalPrice.Equal(dec("340.50")))

	_, err = h.carts.UpdateItem(ctx, 1, ink, UpdateItemRequest{Quantity: 9})
	assert.True(t, errors.Is(err, domain.ErrProductUnavailable))

	cart, err = h.carts.UpdateItem(ctx, 1, ink, UpdateItemRequest{Quantity: 0})
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)

	cart, err = h.carts.RemoveItem(ctx, 1, pen)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	_, err = h.carts.RemoveItem(ctx, 1, pen)
	assert.True(t, errors.Is(err, domain.ErrCartItemNotFound))
}

func TestCartService_AddItemValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.carts.AddItem(ctx, 1, AddItemRequest{ProductID: 1, Quantity: 0})
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))

	_, err = h.carts.AddItem(ctx, 1, AddItemRequest{ProductID: 404, Quantity: 1})
	assert.True(t, errors.Is(err, domain.ErrProductNotFound))

	soldOut := h.product("Lamp", 1, "10", 0)
	_, err = h.carts.AddItem(ctx, 1, AddItemRequest{ProductID: soldOut, Quantity: 1})
	assert.True(t, errors.Is(err, domain.ErrProductUnavailable))
}
