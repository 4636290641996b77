package catalog

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-metal/internal/common"
)

// Handler exposes the read-only price table endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Routes mounts the catalog endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/categories", h.Categories)
	r.Get("/categories/{category}/sizes", h.Sizes)
	r.Get("/branches", h.Branches)
	r.Get("/steels", h.Steels)
	r.Get("/items", h.Items)
	r.Get("/items/{id}", h.ItemDetail)
}

// Categories handles GET /api/v1/categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	h.writeValues(w, r, h.service.Categories)
}

// Branches handles GET /api/v1/branches.
func (h *Handler) Branches(w http.ResponseWriter, r *http.Request) {
	h.writeValues(w, r, h.service.Branches)
}

// Steels handles GET /api/v1/steels.
func (h *Handler) Steels(w http.ResponseWriter, r *http.Request) {
	h.writeValues(w, r, h.service.SteelGrades)
}

// Sizes handles GET /api/v1/categories/{category}/sizes.
func (h *Handler) Sizes(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	sizes, err := h.service.Sizes(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sizes})
}

// Items handles GET /api/v1/items with filters and pagination.
func (h *Handler) Items(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	params, err := h.service.ParseListParams(r.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.service.List(r.Context(), params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(result.Total))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"pagination": common.Pagination{Page: result.Page, PerPage: result.Limit, TotalItems: result.Total},
	})
}

// ItemDetail handles GET /api/v1/items/{id}.
func (h *Handler) ItemDetail(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	item, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": item})
}

func (h *Handler) writeValues(w http.ResponseWriter, r *http.Request, list func(context.Context) ([]string, error)) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	values, err := list(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": values})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, err, ItemNotFound)
}
