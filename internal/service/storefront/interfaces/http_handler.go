package interfaces

import (
	"net/http"
	"strconv"

	"storefront/internal/service/storefront/application"
	"storefront/internal/service/storefront/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// StorefrontHandler 封装了购物车, 优惠, 结算与订单的 HTTP 处理器
type StorefrontHandler struct {
	carts    *application.CartService
	offers   *application.OfferService
	checkout *application.CheckoutService
	orders   *application.OrderService
	admin    *application.AdminService
}

func NewStorefrontHandler(carts *application.CartService, offers *application.OfferService, checkout *application.CheckoutService, orders *application.OrderService, admin *application.AdminService) *StorefrontHandler {
	return &StorefrontHandler{carts: carts, offers: offers, checkout: checkout, orders: orders, admin: admin}
}

// Router 构建独立的路由树, 公共中间件由 Mount 挂到 /api 下
func (h *StorefrontHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	h.Mount(r)
	return r
}

// Mount 把全部接口挂到 /api 下
func (h *StorefrontHandler) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(TraceContext, Identify)
		h.RegisterRoutes(r)
	})
}

// RegisterRoutes 在 chi.Router 上注册所有路由
func (h *StorefrontHandler) RegisterRoutes(r chi.Router) {
	// 匿名可访问
	r.Get("/offers/active", h.handleListActive)
	r.Post("/offers/validate", h.handleValidateCode)
	r.Get("/products/{productID}/offers", h.handleProductOffers)

	r.Group(func(r chi.Router) {
		r.Use(RequireUser)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.handleGetCart)
			r.Post("/items", h.handleAddItem)
			r.Put("/items/{productID}", h.handleUpdateItem)
			r.Delete("/items/{productID}", h.handleRemoveItem)
			r.Get("/offers", h.handleCartOffers)
			r.Post("/offers/apply", h.handleApplyOffer)
			r.Post("/offers/remove", h.handleRemoveOffer)
		})
		r.Get("/offers/applicable", h.handleApplicableOffers)

		r.Post("/checkout", h.handleCheckout)
		r.Get("/orders", h.handleOrderHistory)
		r.Get("/orders/{orderNumber}", h.handleOrderDetail)
		r.Post("/orders/{orderNumber}/cancel", h.handleCancelOrder)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireAdmin)
		r.Get("/offers", h.handleAdminListOffers)
		r.Post("/offers", h.handleAdminCreateOffer)
		r.Post("/offers/cleanup-expired", h.handleAdminCleanup)
		r.Get("/offers/{offerID}", h.handleAdminGetOffer)
		r.Put("/offers/{offerID}", h.handleAdminUpdateOffer)
		r.Patch("/offers/{offerID}", h.handleAdminUpdateOffer)
		r.Delete("/offers/{offerID}", h.handleAdminDeleteOffer)
		r.Post("/offers/{offerID}/revoke", h.handleAdminRevokeOffer)
		r.Post("/offers/{offerID}/usage-stats", h.handleAdminReconcileUsage)
		r.Put("/orders/{orderNumber}/status", h.handleAdminUpdateOrderStatus)
	})
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidRequest.WithMessage("Invalid %s", name)
	}
	return id, nil
}

func userOf(r *http.Request) int64 {
	return IdentityFrom(r.Context()).UserID
}

// ---- 公开优惠 ----

func (h *StorefrontHandler) handleListActive(w http.ResponseWriter, r *http.Request) {
	offers, err := h.offers.ListActive(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

type validateCodeRequest struct {
	Code string `json:"code"`
}

func (h *StorefrontHandler) handleValidateCode(w http.ResponseWriter, r *http.Request) {
	var req validateCodeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.offers.ValidateCode(r.Context(), userOf(r), req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StorefrontHandler) handleProductOffers(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	offers, err := h.offers.ProductOffers(r.Context(), productID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

// ---- 购物车 ----

func (h *StorefrontHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.GetCart(r.Context(), userOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *StorefrontHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req application.AddItemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cart, err := h.carts.AddItem(r.Context(), userOf(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cart)
}

func (h *StorefrontHandler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req application.UpdateItemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cart, err := h.carts.UpdateItem(r.Context(), userOf(r), productID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *StorefrontHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	cart, err := h.carts.RemoveItem(r.Context(), userOf(r), productID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// ---- 购物车优惠 ----

func (h *StorefrontHandler) handleCartOffers(w http.ResponseWriter, r *http.Request) {
	resp, err := h.offers.GetCartOffers(r.Context(), userOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StorefrontHandler) handleApplicableOffers(w http.ResponseWriter, r *http.Request) {
	resp, err := h.offers.ApplicableOffers(r.Context(), userOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StorefrontHandler) handleApplyOffer(w http.ResponseWriter, r *http.Request) {
	var req application.ApplyOfferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.offers.ApplyOffer(r.Context(), userOf(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type removeOfferRequest struct {
	OfferID int64 `json:"offer_id"`
}

func (h *StorefrontHandler) handleRemoveOffer(w http.ResponseWriter, r *http.Request) {
	var req removeOfferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.OfferID <= 0 {
		writeError(w, r, domain.ErrInvalidRequest.WithMessage("offer_id is required"))
		return
	}
	resp, err := h.offers.RemoveOffer(r.Context(), userOf(r), req.OfferID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---- 结算与订单 ----

func (h *StorefrontHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req application.CheckoutRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.checkout.Checkout(r.Context(), userOf(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *StorefrontHandler) handleOrderHistory(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.History(r.Context(), userOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *StorefrontHandler) handleOrderDetail(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Detail(r.Context(), userOf(r), chi.URLParam(r, "orderNumber"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *StorefrontHandler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	resp, err := h.orders.Cancel(r.Context(), userOf(r), chi.URLParam(r, "orderNumber"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
