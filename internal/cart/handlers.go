package cart

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-metal/internal/catalog"
	"github.com/noah-isme/backend-metal/internal/common"
	"github.com/noah-isme/backend-metal/internal/obs"
	"github.com/noah-isme/backend-metal/internal/pricing"
)

// ItemFinder resolves catalog items by id.
type ItemFinder interface {
	Get(ctx context.Context, id string) (catalog.Item, error)
}

// LinePricer prices a selection of an item.
type LinePricer interface {
	PriceLine(item catalog.Item, tons float64) (pricing.LineQuote, error)
}

// Handler wires cart services to HTTP.
type Handler struct {
	Svc         *Service
	Items       ItemFinder
	Pricer      LinePricer
	MinimumTons float64
}

// View is the cart representation returned by every cart endpoint.
type View struct {
	Session     string    `json:"session"`
	Lines       []Line    `json:"lines"`
	Totals      Totals    `json:"totals"`
	Warnings    []Warning `json:"warnings"`
	MinimumTons float64   `json:"minimumTons"`
}

// NewView snapshots agg for a response.
func NewView(session string, agg *Aggregator, minimumTons float64) View {
	return View{
		Session:     session,
		Lines:       agg.Lines(),
		Totals:      agg.Totals(),
		Warnings:    agg.Warnings(minimumTons),
		MinimumTons: minimumTons,
	}
}

type addLineRequest struct {
	ItemID string  `json:"itemId" validate:"required"`
	Tons   float64 `json:"tons"`
}

// Routes mounts the cart endpoints under /carts.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/carts", h.Create)
	r.Route("/carts/{session}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Clear)
		r.Post("/lines", h.AddLine)
		r.Delete("/lines/{lineId}", h.RemoveLine)
	})
}

// Create issues a new empty cart session.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	session := h.Svc.NewSession()
	agg, err := h.Svc.Open(r.Context(), session)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": NewView(session, agg, h.MinimumTons)})
}

// Get returns cart contents and totals.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	session := chi.URLParam(r, "session")
	agg, err := h.Svc.Open(r.Context(), session)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": NewView(session, agg, h.MinimumTons)})
}

// AddLine prices the requested tonnage of a catalog item and appends it to the cart.
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Items == nil || h.Pricer == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var req addLineRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	req.ItemID = strings.TrimSpace(req.ItemID)
	if err := common.ValidateStruct(req); err != nil {
		h.writeError(w, err)
		return
	}
	item, err := h.Items.Get(r.Context(), req.ItemID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	priced, err := h.Pricer.PriceLine(item, req.Tons)
	if err != nil {
		h.writeError(w, err)
		return
	}

	session := chi.URLParam(r, "session")
	var line Line
	agg, err := h.Svc.Mutate(r.Context(), session, func(ctx context.Context, a *Aggregator) error {
		var err error
		line, err = a.Add(ctx, item, priced.Tons, priced.Pieces, priced.Meters, priced.Quote.Primary, priced.Total)
		return err
	})
	if err != nil {
		obs.IncCartMutation("add", "error")
		h.writeError(w, err)
		return
	}
	obs.IncCartMutation("add", "ok")
	common.JSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{
			"line":     line,
			"adjusted": priced.Adjusted,
			"cart":     NewView(session, agg, h.MinimumTons),
		},
	})
}

// RemoveLine deletes a line. Unknown line ids leave the cart unchanged.
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	session := chi.URLParam(r, "session")
	lineID := chi.URLParam(r, "lineId")
	agg, err := h.Svc.Mutate(r.Context(), session, func(ctx context.Context, a *Aggregator) error {
		return a.Remove(ctx, lineID)
	})
	if err != nil {
		obs.IncCartMutation("remove", "error")
		h.writeError(w, err)
		return
	}
	obs.IncCartMutation("remove", "ok")
	common.JSON(w, http.StatusOK, map[string]any{"data": NewView(session, agg, h.MinimumTons)})
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	session := chi.URLParam(r, "session")
	agg, err := h.Svc.Mutate(r.Context(), session, func(ctx context.Context, a *Aggregator) error {
		return a.Clear(ctx)
	})
	if err != nil {
		obs.IncCartMutation("clear", "error")
		h.writeError(w, err)
		return
	}
	obs.IncCartMutation("clear", "ok")
	common.JSON(w, http.StatusOK, map[string]any{"data": NewView(session, agg, h.MinimumTons)})
}

// InvalidSession renders ErrInvalidSession as 400.
var InvalidSession = common.ErrorMapping{Target: ErrInvalidSession, Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: "invalid cart session"}

var cartErrors = []common.ErrorMapping{
	InvalidSession,
	catalog.ItemNotFound,
	pricing.InvalidCatalogData,
	{Target: context.DeadlineExceeded, Status: http.StatusServiceUnavailable, Code: "CART_BUSY", Message: "cart is busy, retry"},
	{Target: context.Canceled, Status: http.StatusServiceUnavailable, Code: "CART_BUSY", Message: "cart is busy, retry"},
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, err, cartErrors...)
}
