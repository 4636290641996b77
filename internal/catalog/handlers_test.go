package catalog_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-metal/internal/catalog"
)

type itemsResponse struct {
	Data       []catalog.Item `json:"data"`
	Pagination struct {
		Page       int `json:"page"`
		PerPage    int `json:"per_page"`
		TotalItems int `json:"total_items"`
	} `json:"pagination"`
}

type valuesResponse struct {
	Data []string `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newCatalogRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, err := catalog.NewService(catalog.ServiceConfig{Source: catalog.StaticSource(loadFixture(t)), DefaultLimit: 20})
	require.NoError(t, err)
	r := chi.NewRouter()
	catalog.NewHandler(catalog.HandlerConfig{Service: svc}).Routes(r)
	return r
}

func TestCatalogHandlers(t *testing.T) {
	router := newCatalogRouter(t)

	t.Run("value lists", func(t *testing.T) {
		for path, want := range map[string][]string{
			"/categories":             {"rebar", "pipe"},
			"/branches":               {"moscow", "spb"},
			"/steels":                 {"A500C", "A240", "20"},
			"/categories/rebar/sizes": {"10", "12"},
		} {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			require.Equal(t, http.StatusOK, rec.Code, path)
			var body valuesResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, want, body.Data, path)
		}
	})

	t.Run("items list", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items?category=rebar&limit=2", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "3", rec.Header().Get("X-Total-Count"))
		var body itemsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Data, 2)
		require.Equal(t, 2, body.Pagination.PerPage)
		require.Equal(t, 3, body.Pagination.TotalItems)
	})

	t.Run("invalid pagination", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items?page=-1", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "BAD_REQUEST", body.Error.Code)
	})

	t.Run("item detail", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/arm-12-a240", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Data catalog.Item `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "A240", body.Data.Steel)
	})

	t.Run("item not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/nope", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "NOT_FOUND", body.Error.Code)
	})
}

func TestCatalogHandlerWithoutService(t *testing.T) {
	h := catalog.NewHandler(catalog.HandlerConfig{})
	rec := httptest.NewRecorder()
	h.Categories(rec, httptest.NewRequest(http.MethodGet, "/categories", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
