// Package calculator turns a catalog item and a requested tonnage into a full price breakdown
// and drives the interactive selection flow on top of it.
package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-metal/internal/catalog"
	"github.com/noah-isme/backend-metal/internal/pricing"
)

// Result is the breakdown shown for one item at one tonnage.
type Result struct {
	ItemID            string                           `json:"itemId"`
	Tons              float64                          `json:"tons"`
	Pieces            int64                            `json:"pieces"`
	Meters            float64                          `json:"meters"`
	Adjusted          bool                             `json:"adjusted"`
	Tier              int                              `json:"tier"`
	PricePerTon       pricing.Quote                    `json:"pricePerTon"`
	Total             decimal.Decimal                  `json:"total"`
	TotalSecondary    decimal.Decimal                  `json:"totalSecondary"`
	Delivery          decimal.Decimal                  `json:"delivery"`
	TotalWithDelivery decimal.Decimal                  `json:"totalWithDelivery"`
	BelowMinimum      bool                             `json:"belowMinimum"`
	MinimumTons       float64                          `json:"minimumTons"`
	TierTable         [pricing.TierCount]pricing.Quote `json:"tierTable"`
}

// Compute prices tons of item. Items with unusable data return pricing.ErrInvalidCatalogData.
func Compute(engine *pricing.Engine, item catalog.Item, tons, minimumTons float64) (Result, error) {
	line, err := engine.PriceLine(item, tons)
	if err != nil {
		return Result{ItemID: item.ID}, err
	}
	delivery := engine.Delivery(line.Tons)
	tonsDec := decimal.NewFromFloat(line.Tons)
	return Result{
		ItemID:            item.ID,
		Tons:              line.Tons,
		Pieces:            line.Pieces,
		Meters:            line.Meters,
		Adjusted:          line.Adjusted,
		Tier:              line.Quote.Tier,
		PricePerTon:       line.Quote,
		Total:             line.Total,
		TotalSecondary:    line.Quote.Secondary.Mul(tonsDec).Round(2),
		Delivery:          delivery,
		TotalWithDelivery: line.Total.Add(delivery),
		BelowMinimum:      minimumTons > 0 && line.Tons < minimumTons,
		MinimumTons:       minimumTons,
		TierTable:         engine.TierTable(item),
	}, nil
}
