package pricing

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-metal/internal/catalog"
	"github.com/noah-isme/backend-metal/internal/common"
)

// ErrInvalidCatalogData marks an item whose data cannot be priced or measured.
var ErrInvalidCatalogData = errors.New("invalid catalog data")

// InvalidCatalogData renders ErrInvalidCatalogData as 422 with the failing field in details.
var InvalidCatalogData = common.ErrorMapping{
	Target:  ErrInvalidCatalogData,
	Status:  http.StatusUnprocessableEntity,
	Code:    "INVALID_CATALOG_DATA",
	Message: "item cannot be priced",
	Details: func(err error) any { return map[string]any{"error": err.Error()} },
}

// TierCount is the number of volume tiers every item is priced in.
const TierCount = 3

// Quote is the per-ton price valid for one tonnage tier.
type Quote struct {
	Tier      int             `json:"tier"`
	Primary   decimal.Decimal `json:"primary"`
	Secondary decimal.Decimal `json:"secondary"`
}

// Schedule describes the tier boundaries and the discount applied to the base price in each tier.
type Schedule struct {
	// Breakpoints are the upper bounds (inclusive) of tiers 0 and 1 in tons.
	Breakpoints [TierCount - 1]float64
	Discounts   [TierCount]decimal.Decimal
}

// DefaultSchedule prices up to 5 t at base, up to 15 t at -3% and above that at -6%.
func DefaultSchedule() Schedule {
	return Schedule{
		Breakpoints: [TierCount - 1]float64{5, 15},
		Discounts: [TierCount]decimal.Decimal{
			decimal.Zero,
			decimal.RequireFromString("0.03"),
			decimal.RequireFromString("0.06"),
		},
	}
}

// Validate ensures the schedule describes a non-increasing price curve.
func (s Schedule) Validate() error {
	prev := 0.0
	for i, bp := range s.Breakpoints {
		if !(bp > prev) {
			return fmt.Errorf("pricing: breakpoint %d must be greater than %v", i, prev)
		}
		prev = bp
	}
	one := decimal.NewFromInt(1)
	last := decimal.Zero
	for i, d := range s.Discounts {
		if d.IsNegative() || d.GreaterThanOrEqual(one) {
			return fmt.Errorf("pricing: discount %d must be in [0,1)", i)
		}
		if d.LessThan(last) {
			return fmt.Errorf("pricing: discount %d is lower than the previous tier", i)
		}
		last = d
	}
	return nil
}

// Tier maps a tonnage to its tier index.
func (s Schedule) Tier(tons float64) int {
	for i, bp := range s.Breakpoints {
		if tons <= bp {
			return i
		}
	}
	return TierCount - 1
}

// Engine resolves tier prices and delivery cost.
type Engine struct {
	schedule Schedule
	delivery *DeliveryTable
}

// NewEngine constructs an Engine from a validated schedule and delivery table.
func NewEngine(schedule Schedule, delivery *DeliveryTable) (*Engine, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	if delivery == nil {
		return nil, errors.New("pricing: delivery table is required")
	}
	return &Engine{schedule: schedule, delivery: delivery}, nil
}

// MustDefaultEngine builds an engine with the default schedule and delivery table.
func MustDefaultEngine() *Engine {
	e, err := NewEngine(DefaultSchedule(), DefaultDeliveryTable())
	if err != nil {
		panic(err)
	}
	return e
}

// Schedule exposes the engine's tier schedule.
func (e *Engine) Schedule() Schedule { return e.schedule }

// ResolveTier returns the per-ton price for the tier containing tons. Callers clamp tons first.
func (e *Engine) ResolveTier(item catalog.Item, tons float64) Quote {
	table := e.TierTable(item)
	return table[e.schedule.Tier(tons)]
}

// TierTable returns the quotes of all tiers for item, cheapest last.
func (e *Engine) TierTable(item catalog.Item) [TierCount]Quote {
	var out [TierCount]Quote
	explicit := len(item.TierPrices) == TierCount
	one := decimal.NewFromInt(1)
	for i := 0; i < TierCount; i++ {
		var p catalog.Price
		if explicit {
			p = item.TierPrices[i]
		} else {
			factor := one.Sub(e.schedule.Discounts[i])
			p = catalog.Price{
				Primary:   item.BasePrice.Primary.Mul(factor),
				Secondary: item.BasePrice.Secondary.Mul(factor),
			}
		}
		q := Quote{
			Tier:      i,
			Primary:   nonNegative(p.Primary).Round(2),
			Secondary: nonNegative(p.Secondary).Round(2),
		}
		if i > 0 {
			q.Primary = decimal.Min(q.Primary, out[i-1].Primary)
			q.Secondary = decimal.Min(q.Secondary, out[i-1].Secondary)
		}
		out[i] = q
	}
	return out
}

// Delivery returns the delivery surcharge for the aggregate weight.
func (e *Engine) Delivery(totalTons float64) decimal.Decimal {
	return e.delivery.Price(totalTons)
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// ParseSchedule builds a schedule from "5,15" breakpoints and "0,0.03,0.06" discounts.
// Empty inputs fall back to the matching half of DefaultSchedule.
func ParseSchedule(breakpoints, discounts string) (Schedule, error) {
	s := DefaultSchedule()
	if bps := splitCSV(breakpoints); len(bps) > 0 {
		if len(bps) != TierCount-1 {
			return Schedule{}, fmt.Errorf("pricing: expected %d breakpoints, got %d", TierCount-1, len(bps))
		}
		for i, raw := range bps {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return Schedule{}, fmt.Errorf("pricing: breakpoint %q: %w", raw, err)
			}
			s.Breakpoints[i] = v
		}
	}
	if ds := splitCSV(discounts); len(ds) > 0 {
		if len(ds) != TierCount {
			return Schedule{}, fmt.Errorf("pricing: expected %d discounts, got %d", TierCount, len(ds))
		}
		for i, raw := range ds {
			v, err := decimal.NewFromString(raw)
			if err != nil {
				return Schedule{}, fmt.Errorf("pricing: discount %q: %w", raw, err)
			}
			s.Discounts[i] = v
		}
	}
	return s, s.Validate()
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
