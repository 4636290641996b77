package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-metal/internal/catalog"
)

// Tonnage bounds accepted by the calculator.
const (
	MinTons = 0.1
	MaxTons = 1000.0
)

// Quantity is a requested tonnage with its derived piece and meter counts.
type Quantity struct {
	Tons   float64 `json:"tons"`
	Pieces int64   `json:"pieces"`
	Meters float64 `json:"meters"`
}

// DeriveQuantities converts tons into whole pieces and running meters for item.
func DeriveQuantities(item catalog.Item, tons float64) (Quantity, error) {
	if math.IsNaN(item.WeightPerPiece) || item.WeightPerPiece <= 0 {
		return Quantity{}, fmt.Errorf("item %s: weight per piece %v: %w", item.ID, item.WeightPerPiece, ErrInvalidCatalogData)
	}
	pieces := int64(math.Round(tons * 1000 / item.WeightPerPiece))
	return Quantity{
		Tons:   tons,
		Pieces: pieces,
		Meters: float64(pieces) * item.LengthPerPiece,
	}, nil
}

// ClampTons bounds tons to [MinTons, MaxTons] and reports whether the value changed.
func ClampTons(tons float64) (float64, bool) {
	switch {
	case math.IsNaN(tons), math.IsInf(tons, 0):
		return MinTons, true
	case tons < MinTons:
		return MinTons, true
	case tons > MaxTons:
		return MaxTons, true
	}
	return tons, false
}

// AdjustTons steps current by direction (+1 or -1). Fractional values move in half-ton steps.
func AdjustTons(current float64, direction int) float64 {
	step := 1.0
	if current != math.Trunc(current) {
		step = 0.5
	}
	switch {
	case direction > 0:
		current += step
	case direction < 0:
		current -= step
	}
	if current < MinTons {
		current = MinTons
	}
	clamped, _ := ClampTons(current)
	return clamped
}

// LineQuote is a priced selection of one item.
type LineQuote struct {
	Quantity
	Adjusted bool            `json:"adjusted"`
	Quote    Quote           `json:"quote"`
	Total    decimal.Decimal `json:"total"`
}

// PriceLine clamps tons, derives quantities and prices the selection at its tier.
func (e *Engine) PriceLine(item catalog.Item, tons float64) (LineQuote, error) {
	tons, adjusted := ClampTons(tons)
	qty, err := DeriveQuantities(item, tons)
	if err != nil {
		return LineQuote{}, err
	}
	quote := e.ResolveTier(item, tons)
	return LineQuote{
		Quantity: qty,
		Adjusted: adjusted,
		Quote:    quote,
		Total:    quote.Primary.Mul(decimal.NewFromFloat(tons)).Round(2),
	}, nil
}
