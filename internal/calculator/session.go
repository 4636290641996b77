package calculator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-metal/internal/cart"
	"github.com/noah-isme/backend-metal/internal/catalog"
	"github.com/noah-isme/backend-metal/internal/pricing"
)

// ErrNoSelection is returned when an action needs a selected item.
var ErrNoSelection = errors.New("no item selected")

// SessionConfig configures a Session.
type SessionConfig struct {
	Engine      *pricing.Engine
	Cart        *cart.Aggregator
	MinimumTons float64
	Debounce    time.Duration
	NoticeTTL   time.Duration
	Logger      zerolog.Logger
}

// State is a point-in-time view of a Session.
type State struct {
	Item    *catalog.Item
	Tons    float64
	Result  Result
	Pending bool
	Blocked bool
	Notice  string
}

// Session tracks one selected item and its tonnage. Tonnage edits recompute after a debounce.
type Session struct {
	engine      *pricing.Engine
	cart        *cart.Aggregator
	minimumTons float64
	debounce    *Debouncer
	notice      *Notice
	logger      zerolog.Logger

	mu      sync.Mutex
	item    *catalog.Item
	tons    float64
	result  Result
	blocked error
}

// NewSession constructs a Session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Engine == nil {
		return nil, errors.New("calculator: pricing engine is required")
	}
	if cfg.Cart == nil {
		return nil, errors.New("calculator: cart is required")
	}
	delay := cfg.Debounce
	if delay <= 0 {
		delay = 300 * time.Millisecond
	}
	return &Session{
		engine:      cfg.Engine,
		cart:        cfg.Cart,
		minimumTons: cfg.MinimumTons,
		debounce:    NewDebouncer(delay),
		notice:      NewNotice(cfg.NoticeTTL),
		logger:      cfg.Logger,
		tons:        1,
	}, nil
}

// Select picks item and prices it immediately at one ton.
func (s *Session) Select(item catalog.Item) (Result, error) {
	s.debounce.Cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.item = &item
	s.tons = 1
	s.recomputeLocked()
	return s.result, s.blocked
}

// Deselect clears the selection and drops any pending recompute.
func (s *Session) Deselect() {
	s.debounce.Cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.item = nil
	s.result = Result{}
	s.blocked = nil
}

// SetTons records a tonnage edit. The value is clamped right away; derived figures follow after the debounce.
func (s *Session) SetTons(tons float64) (float64, bool) {
	clamped, adjusted := pricing.ClampTons(tons)
	s.mu.Lock()
	s.tons = clamped
	s.mu.Unlock()
	s.debounce.Schedule(s.recompute)
	return clamped, adjusted
}

// Adjust steps the tonnage up (direction > 0) or down.
func (s *Session) Adjust(direction int) float64 {
	s.mu.Lock()
	next := pricing.AdjustTons(s.tons, direction)
	s.tons = next
	s.mu.Unlock()
	s.debounce.Schedule(s.recompute)
	return next
}

// Flush applies a pending recompute immediately.
func (s *Session) Flush() {
	s.debounce.Flush()
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	pending := s.debounce.Pending()
	msg, _ := s.notice.Current()
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Tons:    s.tons,
		Result:  s.result,
		Pending: pending,
		Blocked: s.blocked != nil,
		Notice:  msg,
	}
	if s.item != nil {
		item := *s.item
		st.Item = &item
	}
	return st
}

// AddToCart freezes the current quote into the cart.
func (s *Session) AddToCart(ctx context.Context) (cart.Line, error) {
	s.debounce.Flush()
	s.mu.Lock()
	if s.item == nil {
		s.mu.Unlock()
		return cart.Line{}, ErrNoSelection
	}
	if s.blocked != nil {
		err := s.blocked
		s.mu.Unlock()
		return cart.Line{}, err
	}
	item, res := *s.item, s.result
	s.mu.Unlock()

	line, err := s.cart.Add(ctx, item, res.Tons, res.Pieces, res.Meters, res.PricePerTon.Primary, res.Total)
	if err != nil {
		return cart.Line{}, err
	}
	msg := fmt.Sprintf("Added %s t of %s to the cart", strconv.FormatFloat(res.Tons, 'f', -1, 64), item.Name)
	if res.BelowMinimum {
		msg += fmt.Sprintf(" (below the %s t minimum order)", strconv.FormatFloat(s.minimumTons, 'f', -1, 64))
	}
	s.notice.Show(msg)
	return line, nil
}

// Close stops the session timers.
func (s *Session) Close() {
	s.debounce.Cancel()
	s.notice.Clear()
}

func (s *Session) recompute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recomputeLocked()
}

func (s *Session) recomputeLocked() {
	if s.item == nil {
		return
	}
	res, err := Compute(s.engine, *s.item, s.tons, s.minimumTons)
	s.result = res
	s.blocked = err
	if err != nil {
		s.logger.Warn().Err(err).Str("item_id", s.item.ID).Msg("item cannot be priced")
	}
}
