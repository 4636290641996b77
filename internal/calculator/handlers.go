package calculator

import (
	"context"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-metal/internal/catalog"
	"github.com/noah-isme/backend-metal/internal/common"
	"github.com/noah-isme/backend-metal/internal/obs"
	"github.com/noah-isme/backend-metal/internal/pricing"
)

// ItemFinder resolves catalog items by id.
type ItemFinder interface {
	Get(ctx context.Context, id string) (catalog.Item, error)
}

// Handler serves calculator quotes.
type Handler struct {
	Items       ItemFinder
	Engine      *pricing.Engine
	MinimumTons float64
}

type quoteRequest struct {
	ItemID string  `json:"itemId" validate:"required"`
	Tons   float64 `json:"tons"`
}

// Quote handles POST /api/v1/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Items == nil || h.Engine == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "calculator not configured", nil)
		return
	}
	var req quoteRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	req.ItemID = strings.TrimSpace(req.ItemID)
	if err := common.ValidateStruct(req); err != nil {
		common.WriteError(w, err)
		return
	}
	item, err := h.Items.Get(r.Context(), req.ItemID)
	if err != nil {
		common.WriteError(w, err, catalog.ItemNotFound)
		return
	}
	res, err := Compute(h.Engine, item, req.Tons, h.MinimumTons)
	if err != nil {
		obs.IncQuote("blocked")
		common.WriteError(w, err, pricing.InvalidCatalogData)
		return
	}
	obs.IncQuote("ok")
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}
