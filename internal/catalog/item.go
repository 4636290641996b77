package catalog

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Price is a per-ton price expressed in both storefront currencies.
type Price struct {
	Primary   decimal.Decimal `json:"primary"`
	Secondary decimal.Decimal `json:"secondary"`
}

// Item is a single read-only row of the price table.
type Item struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	Branch         string  `json:"branch"`
	Steel          string  `json:"steel"`
	Size           string  `json:"size"`
	WeightPerPiece float64 `json:"weightPerPiece"`
	LengthPerPiece float64 `json:"lengthPerPiece"`
	StockTons      float64 `json:"stockTons"`
	BasePrice      Price   `json:"basePrice"`
	TierPrices     []Price `json:"tierPrices,omitempty"`
	Standard       string  `json:"standard,omitempty"`
	Description    string  `json:"description,omitempty"`
}

// Filter lists the optional fields a listing can be narrowed by. Empty fields match every item.
type Filter struct {
	Category string `json:"category,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Steel    string `json:"steel,omitempty"`
	Size     string `json:"size,omitempty"`
	Search   string `json:"search,omitempty"`
}

// Predicate reports whether an item should be kept.
type Predicate func(Item) bool

// All composes predicates with logical AND. Nil predicates are skipped.
func All(preds ...Predicate) Predicate {
	return func(it Item) bool {
		for _, p := range preds {
			if p != nil && !p(it) {
				return false
			}
		}
		return true
	}
}

// FieldEquals matches when the selected field equals value. An empty value matches everything.
func FieldEquals(field func(Item) string, value string) Predicate {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return func(it Item) bool {
		return field(it) == value
	}
}

// NameContains performs a case-insensitive substring match over the item name.
func NameContains(query string) Predicate {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	return func(it Item) bool {
		return strings.Contains(strings.ToLower(it.Name), query)
	}
}

// Predicate builds the composed predicate for the filter.
func (f Filter) Predicate() Predicate {
	return All(
		FieldEquals(func(it Item) string { return it.Category }, f.Category),
		FieldEquals(func(it Item) string { return it.Branch }, f.Branch),
		FieldEquals(func(it Item) string { return it.Steel }, f.Steel),
		FieldEquals(func(it Item) string { return it.Size }, f.Size),
		NameContains(f.Search),
	)
}

// Apply returns the items matching pred, preserving catalog order.
func Apply(items []Item, pred Predicate) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if pred == nil || pred(it) {
			out = append(out, it)
		}
	}
	return out
}

// Distinct collects the non-empty values of field in first-appearance order.
func Distinct(items []Item, field func(Item) string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0)
	for _, it := range items {
		v := strings.TrimSpace(field(it))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Sizes returns the sorted distinct sizes available in a category.
func Sizes(items []Item, category string) []string {
	inCategory := Apply(items, FieldEquals(func(it Item) string { return it.Category }, category))
	sizes := Distinct(inCategory, func(it Item) string { return it.Size })
	sort.Strings(sizes)
	return sizes
}
