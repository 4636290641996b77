package common_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-metal/internal/common"
)

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestWriteErrorUsesAppErrorMetadata(t *testing.T) {
	rec := httptest.NewRecorder()
	common.WriteError(rec, &common.AppError{Code: "EMPTY_CART", Message: "cart has no lines", HTTPStatus: http.StatusUnprocessableEntity})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "EMPTY_CART", decodeEnvelope(t, rec).Error.Code)

	rec = httptest.NewRecorder()
	common.WriteError(rec, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, "INTERNAL", env.Error.Code)
	require.NotContains(t, env.Error.Message, "boom")
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		ItemID string  `json:"itemId"`
		Tons   float64 `json:"tons"`
	}
	req := httptest.NewRequest(http.MethodPost, "/quote", strings.NewReader(`{"itemId":"arm-12","tons":2}`))
	require.NoError(t, common.DecodeJSON(req, &dst))
	require.Equal(t, "arm-12", dst.ItemID)

	req = httptest.NewRequest(http.MethodPost, "/quote", strings.NewReader(`{"itemId":"arm-12","extra":1}`))
	err := common.DecodeJSON(req, &dst)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVALID_JSON", appErr.Code)

	rec := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/quote", strings.NewReader(`{"itemId":`))
	common.WriteError(rec, common.DecodeJSON(req, &dst))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	type contact struct {
		Name  string `json:"name" validate:"required"`
		Phone string `json:"phone" validate:"required"`
	}
	require.NoError(t, common.ValidateStruct(contact{Name: "Ivan", Phone: "+7"}))

	err := common.ValidateStruct(contact{Name: "Ivan"})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	fields := appErr.Details.(map[string]any)["fields"].(map[string]string)
	require.Equal(t, map[string]string{"phone": "required"}, fields)
}

func TestWriteErrorAppliesMappings(t *testing.T) {
	errEmpty := errors.New("cart is empty")
	errBroken := errors.New("invalid catalog data")
	mappings := []common.ErrorMapping{
		{Target: errEmpty, Status: http.StatusUnprocessableEntity, Code: "EMPTY_CART", Message: "cart has no lines"},
		{
			Target: errBroken, Status: http.StatusUnprocessableEntity, Code: "INVALID_CATALOG_DATA", Message: "item cannot be priced",
			Details: func(err error) any { return map[string]any{"error": err.Error()} },
		},
	}

	rec := httptest.NewRecorder()
	common.WriteError(rec, fmt.Errorf("submit cart s1: %w", errEmpty), mappings...)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "EMPTY_CART", decodeEnvelope(t, rec).Error.Code)

	rec = httptest.NewRecorder()
	common.WriteError(rec, fmt.Errorf("item arm-12 weight: %w", errBroken), mappings...)
	env := decodeEnvelope(t, rec)
	require.Equal(t, "INVALID_CATALOG_DATA", env.Error.Code)
	require.Equal(t, "item arm-12 weight: invalid catalog data", env.Error.Details["error"])

	require.Nil(t, common.Classify(errors.New("intake down"), mappings...))
	require.Nil(t, common.Classify(nil, mappings...))

	explicit := common.NewAppError("CART_BUSY", "cart is busy, retry", http.StatusServiceUnavailable, errEmpty)
	require.Same(t, explicit, common.Classify(fmt.Errorf("wrap: %w", explicit), mappings...), "an AppError in the chain wins")
}
