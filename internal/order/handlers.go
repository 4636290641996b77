package order

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-metal/internal/cart"
	"github.com/noah-isme/backend-metal/internal/catalog"
	"github.com/noah-isme/backend-metal/internal/common"
	"github.com/noah-isme/backend-metal/internal/pricing"
)

// Handler exposes order request endpoints.
type Handler struct {
	Svc *Service
	// Guard wraps every submit endpoint, typically idempotency and rate limiting.
	Guard []func(http.Handler) http.Handler
}

type cartOrderRequest struct {
	Contact *Contact `json:"contact,omitempty"`
}

// Routes mounts order endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		for _, mw := range h.Guard {
			if mw != nil {
				r.Use(mw)
			}
		}
		r.Post("/orders/item", h.SubmitItem)
		r.Post("/carts/{session}/order", h.SubmitCart)
		r.Post("/carts/{session}/quick-order", h.QuickOrder)
	})
}

// SubmitItem handles POST /orders/item.
func (h *Handler) SubmitItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	var req ItemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	receipt, err := h.Svc.SubmitItem(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"data": receipt})
}

// SubmitCart handles POST /carts/{session}/order.
func (h *Handler) SubmitCart(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	var req cartOrderRequest
	// the body is optional
	if err := common.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, err)
		return
	}
	session := chi.URLParam(r, "session")
	receipt, err := h.Svc.SubmitCart(r.Context(), session, req.Contact)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"data": receipt})
}

// QuickOrder handles POST /carts/{session}/quick-order.
func (h *Handler) QuickOrder(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	var contact Contact
	if err := common.DecodeJSON(r, &contact); err != nil {
		writeError(w, err)
		return
	}
	session := chi.URLParam(r, "session")
	receipt, err := h.Svc.QuickOrder(r.Context(), session, contact)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"data": receipt})
}

var orderErrors = []common.ErrorMapping{
	{Target: ErrEmptyCart, Status: http.StatusUnprocessableEntity, Code: "EMPTY_CART", Message: "cart has no lines"},
	cart.InvalidSession,
	catalog.ItemNotFound,
	pricing.InvalidCatalogData,
	{Target: context.DeadlineExceeded, Status: http.StatusServiceUnavailable, Code: "UNAVAILABLE", Message: "order intake timed out"},
}

// writeError treats anything unclassified as a failed handoff to intake.
func writeError(w http.ResponseWriter, err error) {
	if common.Classify(err, orderErrors...) == nil {
		common.JSONError(w, http.StatusBadGateway, "INTAKE_FAILED", "order request could not be delivered", nil)
		return
	}
	common.WriteError(w, err, orderErrors...)
}
