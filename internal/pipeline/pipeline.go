// Package pipeline narrows and orders annotated opportunities for display.
package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/maltedev/toreca-arbitrage/internal/arbitrage"
	"github.com/maltedev/toreca-arbitrage/internal/catalog"
)

const All = "all"

const (
	StockInStock    = "in-stock"
	StockOutOfStock = "out-of-stock"
)

const (
	SortProfit    = "profit"
	SortPriceDesc = "price-desc"
	SortPriceAsc  = "price-asc"
	SortName      = "name"
	SortNumber    = "number"
)

var ErrInvalidFilter = errors.New("invalid filter")

// FilterSpec is a declarative filter and sort request. MaxPrice <= 0 means
// no upper bound.
type FilterSpec struct {
	Set       string   `json:"set"`
	Rarity    string   `json:"rarity"`
	MinPrice  float64  `json:"minPrice"`
	MaxPrice  float64  `json:"maxPrice"`
	MinProfit *float64 `json:"minProfit,omitempty"`
	Stock     string   `json:"stock"`
	SortBy    string   `json:"sortBy"`
	Search    string   `json:"search,omitempty"`
}

func DefaultFilterSpec() FilterSpec {
	return FilterSpec{
		Set:      All,
		Rarity:   All,
		MinPrice: 0,
		MaxPrice: 10000,
		Stock:    All,
		SortBy:   SortProfit,
	}
}

func (f FilterSpec) Validate(cat *catalog.Catalog) error {
	if f.Set != All {
		if _, ok := cat.SetByKey(f.Set); !ok {
			return fmt.Errorf("%w: unknown set %q", ErrInvalidFilter, f.Set)
		}
	}

	if f.Rarity != All {
		if _, ok := cat.Rarity(f.Rarity); !ok {
			return fmt.Errorf("%w: unknown rarity %q", ErrInvalidFilter, f.Rarity)
		}
	}

	switch f.Stock {
	case All, StockInStock, StockOutOfStock:
	default:
		return fmt.Errorf("%w: unknown stock status %q", ErrInvalidFilter, f.Stock)
	}

	switch f.SortBy {
	case SortProfit, SortPriceDesc, SortPriceAsc, SortName, SortNumber:
	default:
		return fmt.Errorf("%w: unknown sort key %q", ErrInvalidFilter, f.SortBy)
	}

	if f.MinPrice < 0 {
		return fmt.Errorf("%w: minPrice must not be negative", ErrInvalidFilter)
	}

	if f.MaxPrice > 0 && f.MaxPrice < f.MinPrice {
		return fmt.Errorf("%w: maxPrice below minPrice", ErrInvalidFilter)
	}

	return nil
}

type Pipeline struct {
	catalog *catalog.Catalog
}

func New(cat *catalog.Catalog) *Pipeline {
	return &Pipeline{catalog: cat}
}

// Apply deduplicates items by card ID, filters them and sorts the rest. The
// input slice is not modified.
func (p *Pipeline) Apply(items []arbitrage.Opportunity, spec FilterSpec) []arbitrage.Opportunity {
	unique := Dedup(items)

	match := p.predicate(spec)
	out := make([]arbitrage.Opportunity, 0, len(unique))
	for _, item := range unique {
		if match(item) {
			out = append(out, item)
		}
	}

	if less := lessFunc(spec.SortBy, out); less != nil {
		sort.SliceStable(out, less)
	}

	return out
}

// Dedup keeps one item per card ID at the position the ID was first seen,
// holding the value seen last.
func Dedup(items []arbitrage.Opportunity) []arbitrage.Opportunity {
	index := make(map[string]int, len(items))
	out := make([]arbitrage.Opportunity, 0, len(items))

	for _, item := range items {
		if i, ok := index[item.ID]; ok {
			out[i] = item
			continue
		}
		index[item.ID] = len(out)
		out = append(out, item)
	}

	return out
}

func (p *Pipeline) predicate(spec FilterSpec) func(arbitrage.Opportunity) bool {
	var filters []func(arbitrage.Opportunity) bool

	if spec.Set != "" && spec.Set != All {
		if set, ok := p.catalog.SetByKey(spec.Set); ok {
			filters = append(filters, func(o arbitrage.Opportunity) bool {
				return set.Matches(o.SetName)
			})
		}
	}

	if spec.Rarity != "" && spec.Rarity != All {
		if r, ok := p.catalog.Rarity(spec.Rarity); ok {
			filters = append(filters, func(o arbitrage.Opportunity) bool {
				return strings.Contains(o.Rarity, r.Match)
			})
		}
	}

	filters = append(filters, func(o arbitrage.Opportunity) bool {
		price := o.Prices.Market
		if price < spec.MinPrice {
			return false
		}
		return spec.MaxPrice <= 0 || price <= spec.MaxPrice
	})

	if spec.MinProfit != nil {
		minProfit := *spec.MinProfit
		filters = append(filters, func(o arbitrage.Opportunity) bool {
			return o.ProfitMargin == nil || *o.ProfitMargin >= minProfit
		})
	}

	if spec.Stock == StockInStock || spec.Stock == StockOutOfStock {
		want := spec.Stock == StockInStock
		filters = append(filters, func(o arbitrage.Opportunity) bool {
			return o.InStock == nil || *o.InStock == want
		})
	}

	if term := strings.ToLower(strings.TrimSpace(spec.Search)); term != "" {
		filters = append(filters, func(o arbitrage.Opportunity) bool {
			return strings.Contains(strings.ToLower(o.Name), term) ||
				strings.Contains(strings.ToLower(o.CardNumber), term)
		})
	}

	return func(o arbitrage.Opportunity) bool {
		for _, f := range filters {
			if !f(o) {
				return false
			}
		}
		return true
	}
}

func lessFunc(sortBy string, items []arbitrage.Opportunity) func(i, j int) bool {
	switch sortBy {
	case SortProfit:
		return func(i, j int) bool {
			a, b := items[i].ProfitMargin, items[j].ProfitMargin
			if a == nil || b == nil {
				return a != nil && b == nil
			}
			return *a > *b
		}
	case SortPriceDesc:
		return func(i, j int) bool {
			return items[i].Prices.Market > items[j].Prices.Market
		}
	case SortPriceAsc:
		return func(i, j int) bool {
			return items[i].Prices.Market < items[j].Prices.Market
		}
	case SortName:
		return func(i, j int) bool {
			return items[i].Name < items[j].Name
		}
	case SortNumber:
		return func(i, j int) bool {
			return items[i].CardNumber < items[j].CardNumber
		}
	}
	return nil
}
