// Package scraper discovers listing pages on the retail sites and turns them
// into per-source price snapshots.
package scraper

import (
	"errors"
	"fmt"

	"github.com/maltedev/toreca-arbitrage/internal/catalog"
	"github.com/maltedev/toreca-arbitrage/internal/models"
	"github.com/maltedev/toreca-arbitrage/internal/parser"
)

var ErrUnknownSource = errors.New("unknown source")

// NewSite returns the search surface for source. An empty baseURL selects
// the production storefront.
func NewSite(source models.Source, baseURL string, cat *catalog.Catalog) (Site, error) {
	switch source {
	case models.SourceJapanToreca:
		return NewJapanTorecaSite(baseURL, cat), nil
	case models.SourceTorecacamp:
		return NewTorecacampSite(baseURL, cat), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
}

func NewExtractor(source models.Source, cat *catalog.Catalog) (parser.Extractor, error) {
	switch source {
	case models.SourceJapanToreca:
		return parser.NewJapanTorecaExtractor(cat), nil
	case models.SourceTorecacamp:
		return parser.NewTorecacampExtractor(cat), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
}
