package order

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-metal/internal/cart"
	"github.com/noah-isme/backend-metal/internal/catalog"
	"github.com/noah-isme/backend-metal/internal/pricing"
)

// Kind identifies where an order request came from.
type Kind string

// Order request kinds.
const (
	KindItem  Kind = "item"
	KindCart  Kind = "cart"
	KindQuick Kind = "quick"
)

// Contact is the optional customer contact attached to an order request.
type Contact struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Comment string `json:"comment,omitempty"`
}

// Normalize trims every field.
func (c Contact) Normalize() Contact {
	return Contact{
		Name:    strings.TrimSpace(c.Name),
		Phone:   strings.TrimSpace(c.Phone),
		Comment: strings.TrimSpace(c.Comment),
	}
}

// Empty reports whether no field carries a value.
func (c Contact) Empty() bool {
	n := c.Normalize()
	return n.Name == "" && n.Phone == "" && n.Comment == ""
}

// Currencies names the primary and secondary price currencies.
type Currencies struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

// SelectedItem is the single-item part of an item order request.
type SelectedItem struct {
	Item        catalog.Item   `json:"item"`
	Tons        float64        `json:"tons"`
	Pieces      int64          `json:"pieces"`
	Meters      float64        `json:"meters"`
	PricePerTon pricing.Quote  `json:"pricePerTon"`
	Filters     catalog.Filter `json:"selectedFilters"`
}

// Payload is the structured order request handed to intake.
type Payload struct {
	Kind              Kind            `json:"kind"`
	Title             string          `json:"title"`
	Session           string          `json:"session,omitempty"`
	Selected          *SelectedItem   `json:"selected,omitempty"`
	Lines             []cart.Line     `json:"lines,omitempty"`
	TotalWeight       float64         `json:"totalWeight"`
	TotalPrice        decimal.Decimal `json:"totalPrice"`
	Delivery          decimal.Decimal `json:"deliveryPrice"`
	TotalWithDelivery decimal.Decimal `json:"totalWithDelivery"`
	Contact           *Contact        `json:"contact,omitempty"`
	Warnings          []cart.Warning  `json:"warnings"`
	Currencies        Currencies      `json:"currencies"`
	SubmittedAt       time.Time       `json:"submittedAt"`
}
