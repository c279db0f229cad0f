package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/toreca-arbitrage/internal/catalog"
	"github.com/maltedev/toreca-arbitrage/internal/models"
)

// JapanTorecaExtractor reads listings shaped like
// "【状態A-】ドリュウズex SAR (171/086) [SV11B]" with the price in visible text.
type JapanTorecaExtractor struct {
	catalog          *catalog.Catalog
	title            titlePatterns
	inStockTokens    []string
	outOfStockTokens []string
	now              func() time.Time
}

func NewJapanTorecaExtractor(cat *catalog.Catalog) *JapanTorecaExtractor {
	return &JapanTorecaExtractor{
		catalog: cat,
		title: titlePatterns{
			cardNumber: regexp.MustCompile(`\((\d+/\d+)\)`),
			set:        regexp.MustCompile(`(?i)\[(` + alternation(cat.SetCodes()) + `)\]`),
			rarity:     regexp.MustCompile(`(` + alternation(cat.RarityCodes()) + `)`),
		},
		inStockTokens:    []string{"在庫"},
		outOfStockTokens: []string{"在庫切れ", "売り切れ"},
		now:              time.Now,
	}
}

func (p *JapanTorecaExtractor) Source() models.Source {
	return models.SourceJapanToreca
}

func (p *JapanTorecaExtractor) Extract(html string, url string) (*models.PriceRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, notExtractable(url, "invalid markup: %v", err)
	}

	title := pageTitle(doc)
	if title == "" {
		return nil, notExtractable(url, "missing title")
	}

	fields, reason := p.title.parse(p.catalog, title)
	if reason != "" {
		return nil, notExtractable(url, "%s", reason)
	}

	price, ok := p.extractPrice(doc)
	if !ok {
		return nil, notExtractable(url, "price not found")
	}

	condition := p.catalog.BestCondition()
	if c, ok := p.catalog.ConditionFor(title); ok {
		condition = c
	}

	record := models.NewPriceRecord(url)
	record.CardNumber = fields.CardNumber
	record.SetCode = fields.SetCode
	record.Rarity = fields.Rarity
	record.PriceJPY = price
	record.Condition = condition.Name
	record.InStock = p.inStock(doc)
	record.LastUpdated = p.now()

	return record, nil
}

// extractPrice takes the first yen amount in document order. There is no
// check that the amount belongs to a price field.
func (p *JapanTorecaExtractor) extractPrice(doc *goquery.Document) (int64, bool) {
	matches := pricePattern.FindStringSubmatch(visibleText(doc.Selection))
	if len(matches) < 2 {
		return 0, false
	}
	return parseYen(matches[1])
}

func (p *JapanTorecaExtractor) inStock(doc *goquery.Document) bool {
	body := visibleText(doc.Find("body"))

	for _, token := range p.outOfStockTokens {
		if strings.Contains(body, token) {
			return false
		}
	}

	for _, token := range p.inStockTokens {
		if strings.Contains(body, token) {
			return true
		}
	}

	return false
}
