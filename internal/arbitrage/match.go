// Package arbitrage joins market feed cards with the retail snapshots and
// computes the buy-low / sell-at-market profit margin per card.
package arbitrage

import (
	"strings"

	"github.com/maltedev/toreca-arbitrage/internal/catalog"
	"github.com/maltedev/toreca-arbitrage/internal/models"
)

// SourcePrice is the buy-side listing one retail source offers for a card.
type SourcePrice struct {
	PriceJPY  int64  `json:"price_jpy"`
	InStock   bool   `json:"in_stock"`
	URL       string `json:"url"`
	Condition string `json:"condition,omitempty"`
}

// Match is the cross-source view of one card. Pointers are nil when the
// source has no listing.
type Match struct {
	JapanToreca  *SourcePrice   `json:"japanToreca"`
	Torecacamp   *SourcePrice   `json:"torecacamp"`
	LowestPrice  *int64         `json:"lowestPrice"`
	LowestSource *models.Source `json:"lowestSource"`
}

// Lowest returns the listing of the lowest source, or nil.
func (m Match) Lowest() *SourcePrice {
	if m.LowestSource == nil {
		return nil
	}
	switch *m.LowestSource {
	case models.SourceJapanToreca:
		return m.JapanToreca
	case models.SourceTorecacamp:
		return m.Torecacamp
	}
	return nil
}

type Matcher struct {
	catalog *catalog.Catalog
}

func NewMatcher(cat *catalog.Catalog) *Matcher {
	return &Matcher{catalog: cat}
}

// MatchBothSources looks up a market card in both snapshots. setLabel is the
// feed's free-text set name, resolved to a catalog set code first; an
// unknown label yields an empty match.
func (m *Matcher) MatchBothSources(setLabel, cardNumber string, japanToreca, torecacamp []models.PriceRecord) Match {
	var result Match

	setCode, ok := m.catalog.ResolveSetCode(setLabel)
	if !ok {
		return result
	}

	result.JapanToreca = find(japanToreca, setCode, cardNumber)
	result.Torecacamp = find(torecacamp, setCode, cardNumber)

	a, b := result.JapanToreca, result.Torecacamp
	switch {
	case a != nil && b != nil:
		if a.PriceJPY <= b.PriceJPY {
			result.setLowest(a.PriceJPY, models.SourceJapanToreca)
		} else {
			result.setLowest(b.PriceJPY, models.SourceTorecacamp)
		}
	case a != nil:
		result.setLowest(a.PriceJPY, models.SourceJapanToreca)
	case b != nil:
		result.setLowest(b.PriceJPY, models.SourceTorecacamp)
	}

	return result
}

func (m *Match) setLowest(price int64, source models.Source) {
	m.LowestPrice = &price
	m.LowestSource = &source
}

// find returns the first record of setCode/cardNumber in snapshot order.
func find(records []models.PriceRecord, setCode, cardNumber string) *SourcePrice {
	for _, r := range records {
		if strings.EqualFold(r.SetCode, setCode) && r.CardNumber == cardNumber {
			return &SourcePrice{
				PriceJPY:  r.PriceJPY,
				InStock:   r.InStock,
				URL:       r.URL,
				Condition: r.Condition,
			}
		}
	}
	return nil
}
