package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-metal/internal/catalog"
	"github.com/noah-isme/backend-metal/internal/kv"
	"github.com/noah-isme/backend-metal/internal/obs"
)

// DefaultStorageKey is the key a cart blob is stored under when none is configured.
const DefaultStorageKey = "atlantmetal_cart"

// ErrMalformedState reports a persisted cart that could not be decoded. Open recovers from it
// with an empty cart, so callers only see it through logs and metrics.
var ErrMalformedState = errors.New("malformed persisted cart state")

// Line is one priced selection. Prices are frozen when the line is added.
type Line struct {
	ID          string          `json:"id"`
	Item        catalog.Item    `json:"item"`
	Tons        float64         `json:"tons"`
	Pieces      int64           `json:"pieces"`
	Meters      float64         `json:"meters"`
	PricePerTon decimal.Decimal `json:"pricePerTon"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	AddedAt     time.Time       `json:"addedAt"`
}

// Totals aggregates the cart. Delivery is computed once over the summed weight.
type Totals struct {
	Count             int             `json:"count"`
	TotalWeight       float64         `json:"totalWeight"`
	TotalPrice        decimal.Decimal `json:"totalPrice"`
	Delivery          decimal.Decimal `json:"delivery"`
	TotalWithDelivery decimal.Decimal `json:"totalWithDelivery"`
}

// Warning flags a line below the minimum order tonnage.
type Warning struct {
	LineID      string  `json:"lineId"`
	ItemID      string  `json:"itemId"`
	ItemName    string  `json:"itemName"`
	Tons        float64 `json:"tons"`
	MinimumTons float64 `json:"minimumTons"`
}

// DeliveryPricer computes the delivery surcharge for a total weight.
type DeliveryPricer interface {
	Delivery(totalTons float64) decimal.Decimal
}

// Options configures an Aggregator.
type Options struct {
	Store    kv.Store
	Key      string
	Delivery DeliveryPricer
	Logger   zerolog.Logger
	Now      func() time.Time
	NewID    func() string
}

// Aggregator owns the ordered lines of one cart and writes the whole list back on every mutation.
type Aggregator struct {
	store    kv.Store
	key      string
	delivery DeliveryPricer
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string

	mu    sync.RWMutex
	lines []Line
}

// Open loads the cart stored under opts.Key. Missing or malformed data yields an empty cart.
func Open(ctx context.Context, opts Options) (*Aggregator, error) {
	if opts.Store == nil {
		return nil, errors.New("cart: store is required")
	}
	if opts.Delivery == nil {
		return nil, errors.New("cart: delivery pricer is required")
	}
	key := opts.Key
	if key == "" {
		key = DefaultStorageKey
	}
	a := &Aggregator{
		store:    opts.Store,
		key:      key,
		delivery: opts.Delivery,
		logger:   opts.Logger,
		now:      opts.Now,
		newID:    opts.NewID,
		lines:    []Line{},
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.newID == nil {
		a.newID = uuid.NewString
	}

	data, ok, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("cart: load %s: %w", key, err)
	}
	if !ok || len(data) == 0 {
		return a, nil
	}
	lines, err := decodeLines(data)
	if err != nil {
		obs.IncCartRecovery()
		a.logger.Warn().Err(err).Str("key", key).Msg("discarding unreadable cart")
		return a, nil
	}
	a.lines = lines
	return a, nil
}

func decodeLines(data []byte) ([]Line, error) {
	var lines []Line
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	for i, l := range lines {
		if l.ID == "" {
			return nil, fmt.Errorf("%w: line %d has no id", ErrMalformedState, i)
		}
	}
	if lines == nil {
		lines = []Line{}
	}
	return lines, nil
}

// Add freezes a priced selection into a new line and persists the cart.
func (a *Aggregator) Add(ctx context.Context, item catalog.Item, tons float64, pieces int64, meters float64, pricePerTon, totalPrice decimal.Decimal) (Line, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	line := Line{
		ID:          fmt.Sprintf("%s_%d_%s", item.ID, now.UnixMilli(), a.newID()),
		Item:        item,
		Tons:        tons,
		Pieces:      pieces,
		Meters:      meters,
		PricePerTon: pricePerTon,
		TotalPrice:  totalPrice,
		AddedAt:     now,
	}
	next := make([]Line, 0, len(a.lines)+1)
	next = append(next, a.lines...)
	next = append(next, line)
	if err := a.flush(ctx, next); err != nil {
		return Line{}, err
	}
	a.lines = next
	return line, nil
}

// Remove deletes the line with id. Unknown ids are ignored without writing.
func (a *Aggregator) Remove(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := -1
	for i, l := range a.lines {
		if l.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	next := make([]Line, 0, len(a.lines)-1)
	next = append(next, a.lines[:idx]...)
	next = append(next, a.lines[idx+1:]...)
	if err := a.flush(ctx, next); err != nil {
		return err
	}
	a.lines = next
	return nil
}

// Clear empties the cart.
func (a *Aggregator) Clear(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := []Line{}
	if err := a.flush(ctx, next); err != nil {
		return err
	}
	a.lines = next
	return nil
}

func (a *Aggregator) flush(ctx context.Context, lines []Line) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("cart: encode: %w", err)
	}
	if err := a.store.Set(ctx, a.key, data); err != nil {
		return fmt.Errorf("cart: persist %s: %w", a.key, err)
	}
	return nil
}

// Lines returns a copy of the lines in insertion order.
func (a *Aggregator) Lines() []Line {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Line, len(a.lines))
	copy(out, a.lines)
	return out
}

// Len reports the number of lines.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.lines)
}

// Totals sums the frozen line values and prices delivery for the aggregate weight.
func (a *Aggregator) Totals() Totals {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t := Totals{Count: len(a.lines), TotalPrice: decimal.Zero}
	weight := decimal.Zero
	for _, l := range a.lines {
		weight = weight.Add(decimal.NewFromFloat(l.Tons))
		t.TotalPrice = t.TotalPrice.Add(l.TotalPrice)
	}
	t.TotalWeight = weight.InexactFloat64()
	t.Delivery = a.delivery.Delivery(t.TotalWeight)
	t.TotalWithDelivery = t.TotalPrice.Add(t.Delivery)
	return t
}

// Warnings lists lines below minimumTons. A non-positive minimum disables the check.
func (a *Aggregator) Warnings(minimumTons float64) []Warning {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := []Warning{}
	if minimumTons <= 0 {
		return out
	}
	for _, l := range a.lines {
		if l.Tons < minimumTons {
			out = append(out, Warning{
				LineID:      l.ID,
				ItemID:      l.Item.ID,
				ItemName:    l.Item.Name,
				Tons:        l.Tons,
				MinimumTons: minimumTons,
			})
		}
	}
	return out
}
