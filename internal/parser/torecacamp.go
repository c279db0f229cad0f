package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/toreca-arbitrage/internal/catalog"
	"github.com/maltedev/toreca-arbitrage/internal/models"
)

// TorecacampExtractor reads listings shaped like "ドリュウズex SAR SV11B 171/086".
// Prices live in embedded offer data, one offer per condition variant.
type TorecacampExtractor struct {
	catalog    *catalog.Catalog
	title      titlePatterns
	excluded   []string
	strategies []OfferStrategy
	now        func() time.Time
}

func NewTorecacampExtractor(cat *catalog.Catalog) *TorecacampExtractor {
	return &TorecacampExtractor{
		catalog: cat,
		title: titlePatterns{
			cardNumber: regexp.MustCompile(`(\d+/\d+)`),
			set:        regexp.MustCompile(`(?i)(` + alternation(cat.SetCodes()) + `)`),
			rarity:     regexp.MustCompile(`(` + alternation(cat.RarityCodes()) + `)`),
		},
		excluded: []string{"psa"},
		strategies: []OfferStrategy{
			{Name: "json-ld", Offers: jsonLDOffers},
			{Name: "analytics", Offers: analyticsOffers},
		},
		now: time.Now,
	}
}

func (p *TorecacampExtractor) Source() models.Source {
	return models.SourceTorecacamp
}

// Strategies lists the price strategies in the order they are tried.
func (p *TorecacampExtractor) Strategies() []string {
	names := make([]string, len(p.strategies))
	for i, s := range p.strategies {
		names[i] = s.Name
	}
	return names
}

func (p *TorecacampExtractor) Extract(html string, url string) (*models.PriceRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, notExtractable(url, "invalid markup: %v", err)
	}

	title := pageTitle(doc)
	if title == "" {
		return nil, notExtractable(url, "missing title")
	}

	// Graded slabs are a different product class.
	lowerTitle := strings.ToLower(title)
	for _, token := range p.excluded {
		if strings.Contains(lowerTitle, token) {
			return nil, notExtractable(url, "graded listing %q", title)
		}
	}

	fields, reason := p.title.parse(p.catalog, title)
	if reason != "" {
		return nil, notExtractable(url, "%s", reason)
	}

	offer, condition, _, ok := p.selectPrice(doc)
	if !ok {
		return nil, notExtractable(url, "no priced offer for any condition tier")
	}

	record := models.NewPriceRecord(url)
	record.CardNumber = fields.CardNumber
	record.SetCode = fields.SetCode
	record.Rarity = fields.Rarity
	record.PriceJPY = offer.PriceJPY
	record.Condition = condition.Name
	record.InStock = offer.InStock
	record.LastUpdated = p.now()

	return record, nil
}

func (p *TorecacampExtractor) selectPrice(doc *goquery.Document) (Offer, catalog.Condition, string, bool) {
	for _, strategy := range p.strategies {
		offers := strategy.Offers(doc)
		if offer, cond, ok := SelectOffer(offers, p.catalog.Conditions); ok {
			return offer, cond, strategy.Name, true
		}
	}
	return Offer{}, catalog.Condition{}, "", false
}
