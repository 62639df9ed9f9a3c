package interfaces

import (
	"net/http"

	"storefront/internal/service/storefront/application"

	"github.com/go-chi/chi/v5"
)

func (h *StorefrontHandler) handleAdminListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.admin.ListOffers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

func (h *StorefrontHandler) handleAdminCreateOffer(w http.ResponseWriter, r *http.Request) {
	var req application.CreateOfferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	offer, err := h.admin.CreateOffer(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, offer)
}

func (h *StorefrontHandler) handleAdminGetOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "offerID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	offer, err := h.admin.GetOffer(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

func (h *StorefrontHandler) handleAdminUpdateOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "offerID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req application.UpdateOfferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.admin.UpdateOffer(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StorefrontHandler) handleAdminDeleteOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "offerID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.admin.DeleteOffer(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StorefrontHandler) handleAdminRevokeOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "offerID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.admin.RevokeOffer(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StorefrontHandler) handleAdminReconcileUsage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "offerID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.admin.ReconcileUsage(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StorefrontHandler) handleAdminCleanup(w http.ResponseWriter, r *http.Request) {
	resp, err := h.admin.CleanupExpired(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StorefrontHandler) handleAdminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req application.UpdateStatusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	order, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "orderNumber"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
