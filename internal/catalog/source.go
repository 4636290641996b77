package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Source loads the ordered price table.
type Source interface {
	Load(ctx context.Context) ([]Item, error)
}

// FileSource reads the price table from a JSON array on disk.
type FileSource struct {
	Path string
}

// Load implements Source.
func (s FileSource) Load(_ context.Context) ([]Item, error) {
	path := strings.TrimSpace(s.Path)
	if path == "" {
		return nil, errors.New("catalog: file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Decode(data)
}

// Decode parses a JSON array of items.
func Decode(data []byte) ([]Item, error) {
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("catalog: decode items: %w", err)
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// StaticSource serves a fixed in-memory table.
type StaticSource []Item

// Load implements Source.
func (s StaticSource) Load(_ context.Context) ([]Item, error) {
	out := make([]Item, len(s))
	copy(out, s)
	return out, nil
}

type rowsQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGSource reads the price table from the price_items table.
type PGSource struct {
	DB rowsQuerier
}

const listPriceItemsSQL = `SELECT id, name, category, branch, steel, size,
	weight_per_piece, length_per_piece, stock_tons,
	base_price_primary::text, base_price_secondary::text,
	COALESCE(tier_prices, 'null'::jsonb), standard, description
FROM price_items
ORDER BY position, id`

// Load implements Source.
func (s PGSource) Load(ctx context.Context) ([]Item, error) {
	if s.DB == nil {
		return nil, errors.New("catalog: database not configured")
	}
	rows, err := s.DB.Query(ctx, listPriceItemsSQL)
	if err != nil {
		return nil, fmt.Errorf("catalog: query price items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("catalog: scan price items: %w", err)
	}
	return items, nil
}

func scanItem(row pgx.CollectableRow) (Item, error) {
	var (
		it                 Item
		primary, secondary string
		tierPrices         []byte
	)
	if err := row.Scan(
		&it.ID, &it.Name, &it.Category, &it.Branch, &it.Steel, &it.Size,
		&it.WeightPerPiece, &it.LengthPerPiece, &it.StockTons,
		&primary, &secondary,
		&tierPrices, &it.Standard, &it.Description,
	); err != nil {
		return Item{}, err
	}
	var err error
	if it.BasePrice.Primary, err = decimal.NewFromString(primary); err != nil {
		return Item{}, fmt.Errorf("item %s: base price: %w", it.ID, err)
	}
	if it.BasePrice.Secondary, err = decimal.NewFromString(secondary); err != nil {
		return Item{}, fmt.Errorf("item %s: base price: %w", it.ID, err)
	}
	if len(tierPrices) > 0 && string(tierPrices) != "null" {
		if err := json.Unmarshal(tierPrices, &it.TierPrices); err != nil {
			return Item{}, fmt.Errorf("item %s: tier prices: %w", it.ID, err)
		}
	}
	return it, nil
}
