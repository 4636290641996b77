package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/backend-metal/internal/calculator"
	"github.com/noah-isme/backend-metal/internal/cart"
	"github.com/noah-isme/backend-metal/internal/catalog"
	"github.com/noah-isme/backend-metal/internal/common"
	"github.com/noah-isme/backend-metal/internal/events"
	"github.com/noah-isme/backend-metal/internal/obs"
	"github.com/noah-isme/backend-metal/internal/pricing"
)

// ErrEmptyCart is returned when a cart with no lines is submitted.
var ErrEmptyCart = errors.New("cart is empty")

// Request titles shown to the intake team.
const (
	TitleItem  = "Rolled metal order"
	TitleCart  = "Cart order"
	TitleQuick = "Quick cart order"
)

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, payload any) (events.Event, error)
}

// ItemFinder resolves catalog items by id.
type ItemFinder interface {
	Get(ctx context.Context, id string) (catalog.Item, error)
}

// Service assembles order requests and emits them to intake.
type Service struct {
	Bus         Emitter
	Items       ItemFinder
	Engine      *pricing.Engine
	Carts       *cart.Service
	MinimumTons float64
	Currencies  Currencies
	Now         func() time.Time
}

// ItemRequest orders a single item straight from the calculator.
type ItemRequest struct {
	ItemID  string         `json:"itemId" validate:"required"`
	Tons    float64        `json:"tons"`
	Filters catalog.Filter `json:"selectedFilters"`
	Contact *Contact       `json:"contact,omitempty"`
}

// Receipt acknowledges an accepted order request.
type Receipt struct {
	EventID string  `json:"eventId"`
	Payload Payload `json:"payload"`
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// SubmitItem prices the requested tonnage and emits an item order request.
func (s *Service) SubmitItem(ctx context.Context, req ItemRequest) (Receipt, error) {
	if s == nil || s.Bus == nil || s.Items == nil || s.Engine == nil {
		return Receipt{}, errors.New("order service not configured")
	}
	req.ItemID = strings.TrimSpace(req.ItemID)
	if err := common.ValidateStruct(req); err != nil {
		return Receipt{}, err
	}
	contact, err := optionalContact(req.Contact)
	if err != nil {
		return Receipt{}, err
	}
	item, err := s.Items.Get(ctx, req.ItemID)
	if err != nil {
		return Receipt{}, err
	}
	res, err := calculator.Compute(s.Engine, item, req.Tons, s.MinimumTons)
	if err != nil {
		return Receipt{}, err
	}
	warnings := []cart.Warning{}
	if res.BelowMinimum {
		warnings = append(warnings, cart.Warning{
			ItemID:      item.ID,
			ItemName:    item.Name,
			Tons:        res.Tons,
			MinimumTons: s.MinimumTons,
		})
	}
	payload := Payload{
		Kind:  KindItem,
		Title: TitleItem,
		Selected: &SelectedItem{
			Item:        item,
			Tons:        res.Tons,
			Pieces:      res.Pieces,
			Meters:      res.Meters,
			PricePerTon: res.PricePerTon,
			Filters:     req.Filters,
		},
		TotalWeight:       res.Tons,
		TotalPrice:        res.Total,
		Delivery:          res.Delivery,
		TotalWithDelivery: res.TotalWithDelivery,
		Contact:           contact,
		Warnings:          warnings,
		Currencies:        s.Currencies,
		SubmittedAt:       s.now().UTC(),
	}
	return s.emit(ctx, events.TopicOrderItemRequested, payload)
}

// SubmitCart emits the whole session cart. Contact is optional.
func (s *Service) SubmitCart(ctx context.Context, session string, contact *Contact) (Receipt, error) {
	normalized, err := optionalContact(contact)
	if err != nil {
		return Receipt{}, err
	}
	return s.submitCart(ctx, session, KindCart, normalized)
}

// QuickOrder emits the session cart with a required name and phone.
func (s *Service) QuickOrder(ctx context.Context, session string, contact Contact) (Receipt, error) {
	normalized := contact.Normalize()
	if err := common.ValidateStruct(normalized); err != nil {
		return Receipt{}, err
	}
	return s.submitCart(ctx, session, KindQuick, &normalized)
}

func (s *Service) submitCart(ctx context.Context, session string, kind Kind, contact *Contact) (Receipt, error) {
	if s == nil || s.Bus == nil || s.Carts == nil {
		return Receipt{}, errors.New("order service not configured")
	}
	agg, err := s.Carts.Open(ctx, session)
	if err != nil {
		return Receipt{}, err
	}
	if agg.Len() == 0 {
		return Receipt{}, ErrEmptyCart
	}
	totals := agg.Totals()
	title, topic := TitleCart, events.TopicOrderCartRequested
	if kind == KindQuick {
		title, topic = TitleQuick, events.TopicOrderQuickRequested
	}
	payload := Payload{
		Kind:              kind,
		Title:             title,
		Session:           session,
		Lines:             agg.Lines(),
		TotalWeight:       totals.TotalWeight,
		TotalPrice:        totals.TotalPrice,
		Delivery:          totals.Delivery,
		TotalWithDelivery: totals.TotalWithDelivery,
		Contact:           contact,
		Warnings:          agg.Warnings(s.MinimumTons),
		Currencies:        s.Currencies,
		SubmittedAt:       s.now().UTC(),
	}
	return s.emit(ctx, topic, payload)
}

func (s *Service) emit(ctx context.Context, topic string, payload Payload) (Receipt, error) {
	ev, err := s.Bus.Emit(ctx, topic, payload)
	if err != nil {
		obs.IncOrderRequest(string(payload.Kind), "error")
		return Receipt{}, fmt.Errorf("order: emit %s: %w", topic, err)
	}
	obs.IncOrderRequest(string(payload.Kind), "ok")
	return Receipt{EventID: ev.ID, Payload: payload}, nil
}

// optionalContact normalises a contact that may be omitted. When present it must be complete.
func optionalContact(c *Contact) (*Contact, error) {
	if c == nil || c.Empty() {
		return nil, nil
	}
	n := c.Normalize()
	if err := common.ValidateStruct(n); err != nil {
		return nil, err
	}
	return &n, nil
}
