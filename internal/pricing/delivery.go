package pricing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DeliveryBracket charges Amount for any total weight up to UpToTons.
type DeliveryBracket struct {
	UpToTons float64
	Amount   decimal.Decimal
}

// DeliveryTable is an ascending bracket table with a per-ton rate past the last bracket.
type DeliveryTable struct {
	brackets     []DeliveryBracket
	perTonBeyond decimal.Decimal
}

// NewDeliveryTable validates brackets and returns a table.
func NewDeliveryTable(brackets []DeliveryBracket, perTonBeyond decimal.Decimal) (*DeliveryTable, error) {
	if len(brackets) == 0 {
		return nil, errors.New("pricing: at least one delivery bracket is required")
	}
	if perTonBeyond.IsNegative() {
		return nil, errors.New("pricing: per-ton delivery rate must not be negative")
	}
	prevTons := 0.0
	prevAmount := decimal.Zero
	for i, b := range brackets {
		if math.IsNaN(b.UpToTons) || math.IsInf(b.UpToTons, 0) || b.UpToTons <= prevTons {
			return nil, fmt.Errorf("pricing: delivery bracket %d bound must ascend", i)
		}
		if b.Amount.IsNegative() || b.Amount.LessThan(prevAmount) {
			return nil, fmt.Errorf("pricing: delivery bracket %d amount must be non-negative and non-decreasing", i)
		}
		prevTons, prevAmount = b.UpToTons, b.Amount
	}
	out := make([]DeliveryBracket, len(brackets))
	copy(out, brackets)
	return &DeliveryTable{brackets: out, perTonBeyond: perTonBeyond}, nil
}

// DefaultDeliveryTable charges 25000 up to 5 t, 40000 up to 10 t, 60000 up to 20 t and 2500 per extra ton.
func DefaultDeliveryTable() *DeliveryTable {
	t, err := NewDeliveryTable([]DeliveryBracket{
		{UpToTons: 5, Amount: decimal.NewFromInt(25000)},
		{UpToTons: 10, Amount: decimal.NewFromInt(40000)},
		{UpToTons: 20, Amount: decimal.NewFromInt(60000)},
	}, decimal.NewFromInt(2500))
	if err != nil {
		panic(err)
	}
	return t
}

// weightPlaces is the tonnage precision used for bracket lookup.
const weightPlaces = 6

// Price returns the delivery surcharge for totalTons. Non-positive or non-finite weight costs nothing.
func (t *DeliveryTable) Price(totalTons float64) decimal.Decimal {
	if t == nil || math.IsNaN(totalTons) || math.IsInf(totalTons, 0) || totalTons <= 0 {
		return decimal.Zero
	}
	weight := decimal.NewFromFloat(totalTons).Round(weightPlaces)
	for _, b := range t.brackets {
		if weight.LessThanOrEqual(decimal.NewFromFloat(b.UpToTons)) {
			return b.Amount
		}
	}
	last := t.brackets[len(t.brackets)-1]
	extra := weight.Sub(decimal.NewFromFloat(last.UpToTons)).Ceil()
	return last.Amount.Add(t.perTonBeyond.Mul(extra))
}

// Delivery makes a bare table usable wherever an Engine prices delivery.
func (t *DeliveryTable) Delivery(totalTons float64) decimal.Decimal {
	return t.Price(totalTons)
}

// ParseDeliveryBrackets parses "5:25000,10:40000" into brackets.
func ParseDeliveryBrackets(raw string) ([]DeliveryBracket, error) {
	var out []DeliveryBracket
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tons, amount, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("pricing: delivery bracket %q must be tons:amount", part)
		}
		upTo, err := strconv.ParseFloat(strings.TrimSpace(tons), 64)
		if err != nil {
			return nil, fmt.Errorf("pricing: delivery bracket %q: %w", part, err)
		}
		value, err := decimal.NewFromString(strings.TrimSpace(amount))
		if err != nil {
			return nil, fmt.Errorf("pricing: delivery bracket %q: %w", part, err)
		}
		out = append(out, DeliveryBracket{UpToTons: upTo, Amount: value})
	}
	return out, nil
}
