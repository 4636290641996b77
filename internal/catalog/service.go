package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/backend-metal/internal/common"
)

// ErrItemNotFound is returned when an item id is not part of the price table.
var ErrItemNotFound = errors.New("catalog item not found")

// ItemNotFound renders ErrItemNotFound as 404.
var ItemNotFound = common.ErrorMapping{Target: ErrItemNotFound, Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "item not found"}

const snapshotCacheKey = "catalog:items:snapshot"

// Service answers catalog queries over a snapshot of the price table.
type Service struct {
	source       Source
	cache        *Cache
	defaultLimit int
	maxLimit     int
	refresh      time.Duration
	now          func() time.Time

	mu       sync.RWMutex
	items    []Item
	index    map[string]int
	loadedAt time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Source       Source
	Cache        *Cache
	DefaultLimit int
	MaxLimit     int
	// Refresh controls how long an in-process snapshot is served before reloading. Zero keeps it forever.
	Refresh time.Duration
	Now     func() time.Time
}

// ListParams captures filters and pagination for item listing.
type ListParams struct {
	Filter Filter
	Page   int
	Limit  int
}

// ListResult contains list data and pagination metadata.
type ListResult struct {
	Items []Item
	Total int
	Page  int
	Limit int
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, errors.New("catalog: source is required")
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		source:       cfg.Source,
		cache:        cfg.Cache,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		refresh:      cfg.Refresh,
		now:          now,
	}, nil
}

// Items returns the full ordered price table.
func (s *Service) Items(ctx context.Context) ([]Item, error) {
	s.mu.RLock()
	if s.items != nil && !s.stale() {
		items := s.items
		s.mu.RUnlock()
		return items, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items != nil && !s.stale() {
		return s.items, nil
	}
	items, err := s.loadLocked(ctx)
	if err != nil {
		if s.items != nil {
			// keep serving the previous snapshot
			return s.items, nil
		}
		return nil, err
	}
	return items, nil
}

// Reload drops the cached snapshot and reads the source again.
func (s *Service) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cache.Invalidate(ctx, snapshotCacheKey); err != nil {
		return fmt.Errorf("catalog: invalidate snapshot: %w", err)
	}
	_, err := s.loadLocked(ctx)
	return err
}

func (s *Service) stale() bool {
	return s.refresh > 0 && s.now().Sub(s.loadedAt) >= s.refresh
}

func (s *Service) loadLocked(ctx context.Context) ([]Item, error) {
	var items []Item
	ok, err := s.cache.GetJSON(ctx, snapshotCacheKey, &items)
	if err != nil || !ok {
		items, err = s.source.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("catalog: load items: %w", err)
		}
		_ = s.cache.SetJSON(ctx, snapshotCacheKey, items)
	}
	if items == nil {
		items = []Item{}
	}
	index := make(map[string]int, len(items))
	for i, it := range items {
		if _, dup := index[it.ID]; !dup {
			index[it.ID] = i
		}
	}
	s.items = items
	s.index = index
	s.loadedAt = s.now()
	return items, nil
}

// Get returns a single item by id.
func (s *Service) Get(ctx context.Context, id string) (Item, error) {
	items, err := s.Items(ctx)
	if err != nil {
		return Item{}, err
	}
	s.mu.RLock()
	idx, ok := s.index[strings.TrimSpace(id)]
	s.mu.RUnlock()
	if !ok || idx >= len(items) {
		return Item{}, ErrItemNotFound
	}
	return items[idx], nil
}

// Categories lists distinct categories in catalog order.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, func(it Item) string { return it.Category })
}

// Branches lists distinct branches in catalog order.
func (s *Service) Branches(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, func(it Item) string { return it.Branch })
}

// SteelGrades lists distinct steel grades in catalog order.
func (s *Service) SteelGrades(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, func(it Item) string { return it.Steel })
}

// Sizes lists the sorted sizes available within a category.
func (s *Service) Sizes(ctx context.Context, category string) ([]string, error) {
	items, err := s.Items(ctx)
	if err != nil {
		return nil, err
	}
	return Sizes(items, category), nil
}

func (s *Service) distinct(ctx context.Context, field func(Item) string) ([]string, error) {
	items, err := s.Items(ctx)
	if err != nil {
		return nil, err
	}
	return Distinct(items, field), nil
}

// List returns the filtered page of items.
func (s *Service) List(ctx context.Context, params ListParams) (ListResult, error) {
	items, err := s.Items(ctx)
	if err != nil {
		return ListResult{}, err
	}
	page, limit := params.Page, params.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	matched := Apply(items, params.Filter.Predicate())
	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return ListResult{Items: matched[start:end], Total: len(matched), Page: page, Limit: limit}, nil
}

// ParseListParams normalises raw query values into strongly typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{
		Filter: Filter{
			Category: strings.TrimSpace(values.Get("category")),
			Branch:   strings.TrimSpace(values.Get("branch")),
			Steel:    strings.TrimSpace(values.Get("steel")),
			Size:     strings.TrimSpace(values.Get("size")),
			Search:   strings.TrimSpace(values.Get("q")),
		},
		Page:  1,
		Limit: s.defaultLimit,
	}
	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		if limit > s.maxLimit {
			limit = s.maxLimit
		}
		params.Limit = limit
	}
	return params, nil
}

func badRequest(field, message string, err error) *common.AppError {
	appErr := common.NewAppError("BAD_REQUEST", message, http.StatusBadRequest, err)
	appErr.Details = map[string]any{"field": field}
	return appErr
}
