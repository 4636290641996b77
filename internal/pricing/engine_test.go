package pricing_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-metal/internal/catalog"
	"github.com/noah-isme/backend-metal/internal/pricing"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func rebar() catalog.Item {
	return catalog.Item{
		ID:             "arm-12",
		WeightPerPiece: 10.66,
		LengthPerPiece: 11.7,
		BasePrice:      catalog.Price{Primary: dec("54000"), Secondary: dec("590")},
	}
}

func TestResolveTierBoundaries(t *testing.T) {
	engine := pricing.MustDefaultEngine()
	item := rebar()

	cases := []struct {
		tons    float64
		tier    int
		primary string
	}{
		{0.1, 0, "54000"},
		{5, 0, "54000"},
		{5.01, 1, "52380"},
		{15, 1, "52380"},
		{15.5, 2, "50760"},
		{1000, 2, "50760"},
	}
	for _, tc := range cases {
		q := engine.ResolveTier(item, tc.tons)
		require.Equal(t, tc.tier, q.Tier, "tons=%v", tc.tons)
		require.True(t, q.Primary.Equal(dec(tc.primary)), "tons=%v got %s", tc.tons, q.Primary)
	}
	require.True(t, engine.ResolveTier(item, 20).Secondary.Equal(dec("554.6")))
}

func TestResolveTierIsNonIncreasing(t *testing.T) {
	engine := pricing.MustDefaultEngine()
	item := rebar()
	item.TierPrices = []catalog.Price{
		{Primary: dec("50000"), Secondary: dec("500")},
		{Primary: dec("51000"), Secondary: dec("490")},
		{Primary: dec("48000"), Secondary: dec("495")},
	}

	table := engine.TierTable(item)
	require.True(t, table[1].Primary.Equal(dec("50000")))
	require.True(t, table[1].Secondary.Equal(dec("490")))
	require.True(t, table[2].Primary.Equal(dec("48000")))
	require.True(t, table[2].Secondary.Equal(dec("490")))

	prev := engine.ResolveTier(item, 0.1)
	for tons := 0.5; tons <= 40; tons += 0.5 {
		q := engine.ResolveTier(item, tons)
		require.True(t, q.Primary.LessThanOrEqual(prev.Primary))
		require.True(t, q.Secondary.LessThanOrEqual(prev.Secondary))
		require.False(t, q.Primary.IsNegative())
		prev = q
	}
}

func TestTierTableIgnoresIncompleteExplicitPrices(t *testing.T) {
	engine := pricing.MustDefaultEngine()
	item := rebar()
	item.TierPrices = []catalog.Price{{Primary: dec("1"), Secondary: dec("1")}}

	table := engine.TierTable(item)
	require.True(t, table[0].Primary.Equal(dec("54000")))
}

func TestTierTableClampsNegativePrices(t *testing.T) {
	engine := pricing.MustDefaultEngine()
	item := rebar()
	item.BasePrice = catalog.Price{Primary: dec("-10"), Secondary: dec("5")}

	q := engine.ResolveTier(item, 1)
	require.True(t, q.Primary.IsZero())
	require.True(t, q.Secondary.Equal(dec("5")))
}

func TestScheduleValidation(t *testing.T) {
	s := pricing.DefaultSchedule()
	require.NoError(t, s.Validate())

	bad := s
	bad.Breakpoints = [2]float64{15, 5}
	require.Error(t, bad.Validate())

	bad = s
	bad.Discounts[2] = dec("0.01")
	require.Error(t, bad.Validate())

	bad = s
	bad.Discounts[0] = dec("-0.1")
	require.Error(t, bad.Validate())

	_, err := pricing.NewEngine(s, nil)
	require.Error(t, err)
}

func TestDeriveQuantities(t *testing.T) {
	q, err := pricing.DeriveQuantities(rebar(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 94, q.Pieces)
	require.InDelta(t, 94*11.7, q.Meters, 1e-9)

	q, err = pricing.DeriveQuantities(catalog.Item{WeightPerPiece: 1000, LengthPerPiece: 6}, 2.5)
	require.NoError(t, err)
	require.EqualValues(t, 3, q.Pieces)
	require.InDelta(t, 18, q.Meters, 1e-9)

	for _, wpp := range []float64{0, -1} {
		_, err = pricing.DeriveQuantities(catalog.Item{ID: "bad", WeightPerPiece: wpp}, 1)
		require.True(t, errors.Is(err, pricing.ErrInvalidCatalogData))
	}
}

func TestParseSchedule(t *testing.T) {
	s, err := pricing.ParseSchedule("", "")
	require.NoError(t, err)
	require.Equal(t, pricing.DefaultSchedule().Breakpoints, s.Breakpoints)

	s, err = pricing.ParseSchedule("3, 12", "0,0.02,0.05")
	require.NoError(t, err)
	require.Equal(t, [2]float64{3, 12}, s.Breakpoints)
	require.True(t, s.Discounts[2].Equal(dec("0.05")))
	require.Equal(t, 1, s.Tier(4))

	_, err = pricing.ParseSchedule("5", "")
	require.Error(t, err)
	_, err = pricing.ParseSchedule("", "0,0.1")
	require.Error(t, err)
	_, err = pricing.ParseSchedule("15,5", "")
	require.Error(t, err)
	_, err = pricing.ParseSchedule("", "0,x,0.1")
	require.Error(t, err)
}
