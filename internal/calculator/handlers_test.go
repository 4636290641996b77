package calculator_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-metal/internal/calculator"
	"github.com/noah-isme/backend-metal/internal/catalog"
	"github.com/noah-isme/backend-metal/internal/pricing"
)

func newQuoteHandler(t *testing.T) *calculator.Handler {
	t.Helper()
	items, err := catalog.NewService(catalog.ServiceConfig{Source: catalog.StaticSource{pipe, {ID: "broken"}}})
	require.NoError(t, err)
	return &calculator.Handler{Items: items, Engine: pricing.MustDefaultEngine(), MinimumTons: 1}
}

func TestQuoteHandler(t *testing.T) {
	h := newQuoteHandler(t)

	rec := httptest.NewRecorder()
	h.Quote(rec, httptest.NewRequest(http.MethodPost, "/api/v1/quote", strings.NewReader(`{"itemId":"pipe-57","tons":16}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Data calculator.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Data.Tier)
	require.EqualValues(t, 291, body.Data.Pieces)
	require.True(t, body.Data.Delivery.Equal(dec("60000")))
}

func TestQuoteHandlerErrors(t *testing.T) {
	h := newQuoteHandler(t)
	cases := map[string]struct {
		body   string
		status int
		code   string
	}{
		"malformed":   {body: `{"itemId":`, status: http.StatusBadRequest, code: "INVALID_JSON"},
		"missing id":  {body: `{"tons":1}`, status: http.StatusBadRequest, code: "VALIDATION_FAILED"},
		"unknown":     {body: `{"itemId":"x","tons":1}`, status: http.StatusNotFound, code: "NOT_FOUND"},
		"bad catalog": {body: `{"itemId":"broken","tons":1}`, status: http.StatusUnprocessableEntity, code: "INVALID_CATALOG_DATA"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Quote(rec, httptest.NewRequest(http.MethodPost, "/api/v1/quote", strings.NewReader(tc.body)))
			require.Equal(t, tc.status, rec.Code)
			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.code, body.Error.Code)
		})
	}
}
