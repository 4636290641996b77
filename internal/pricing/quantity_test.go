package pricing_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-metal/internal/catalog"
	"github.com/noah-isme/backend-metal/internal/pricing"
)

func TestClampTons(t *testing.T) {
	cases := []struct {
		in       float64
		want     float64
		adjusted bool
	}{
		{0.5, 0.5, false},
		{0.1, 0.1, false},
		{1000, 1000, false},
		{0, 0.1, true},
		{-3, 0.1, true},
		{1500, 1000, true},
		{math.NaN(), 0.1, true},
		{math.Inf(1), 0.1, true},
	}
	for _, tc := range cases {
		got, adjusted := pricing.ClampTons(tc.in)
		require.Equal(t, tc.want, got, "in=%v", tc.in)
		require.Equal(t, tc.adjusted, adjusted, "in=%v", tc.in)
	}
}

func TestAdjustTons(t *testing.T) {
	require.Equal(t, 2.0, pricing.AdjustTons(1, 1))
	require.Equal(t, 3.0, pricing.AdjustTons(2.5, 1))
	require.Equal(t, 2.0, pricing.AdjustTons(2.5, -1))
	require.Equal(t, 0.1, pricing.AdjustTons(1, -1))
	require.Equal(t, 0.1, pricing.AdjustTons(0.1, -1))
	require.Equal(t, 1000.0, pricing.AdjustTons(1000, 1))
	require.InDelta(t, 0.6, pricing.AdjustTons(0.1, 1), 1e-9)
}

func TestPriceLine(t *testing.T) {
	engine := pricing.MustDefaultEngine()

	line, err := engine.PriceLine(rebar(), 6)
	require.NoError(t, err)
	require.False(t, line.Adjusted)
	require.Equal(t, 1, line.Quote.Tier)
	require.EqualValues(t, 563, line.Pieces)
	require.True(t, line.Total.Equal(dec("314280")), line.Total.String())

	line, err = engine.PriceLine(rebar(), 0)
	require.NoError(t, err)
	require.True(t, line.Adjusted)
	require.Equal(t, 0.1, line.Tons)
	require.True(t, line.Total.Equal(dec("5400")), line.Total.String())

	_, err = engine.PriceLine(catalog.Item{ID: "broken"}, 1)
	require.ErrorIs(t, err, pricing.ErrInvalidCatalogData)
}
