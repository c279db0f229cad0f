package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/toreca-arbitrage/internal/catalog"
	"github.com/maltedev/toreca-arbitrage/internal/models"
)

// ErrNotExtractable marks a listing page that does not yield a price record.
// It is an expected outcome for drifting third-party markup.
var ErrNotExtractable = errors.New("listing not extractable")

type NotExtractableError struct {
	URL    string
	Reason string
}

func (e *NotExtractableError) Error() string {
	return fmt.Sprintf("listing not extractable: %s (%s)", e.Reason, e.URL)
}

func (e *NotExtractableError) Is(target error) bool {
	return target == ErrNotExtractable
}

func notExtractable(url, format string, args ...any) error {
	return &NotExtractableError{URL: url, Reason: fmt.Sprintf(format, args...)}
}

// Extractor turns one listing page into a normalized price record.
type Extractor interface {
	Source() models.Source
	Extract(html string, url string) (*models.PriceRecord, error)
}

type titleFields struct {
	CardNumber string
	SetCode    string
	Rarity     string
}

// titlePatterns holds the three required title extractions. All of them must
// match; a partial title is never turned into a record.
type titlePatterns struct {
	cardNumber *regexp.Regexp
	set        *regexp.Regexp
	rarity     *regexp.Regexp
}

func (tp titlePatterns) parse(cat *catalog.Catalog, title string) (titleFields, string) {
	numberMatch := tp.cardNumber.FindStringSubmatch(title)
	if len(numberMatch) < 2 {
		return titleFields{}, "card number not found in title"
	}

	setMatch := tp.set.FindStringSubmatch(title)
	if len(setMatch) < 2 {
		return titleFields{}, "set code not found in title"
	}

	set, ok := cat.SetByCode(setMatch[1])
	if !ok {
		return titleFields{}, "unknown set code " + setMatch[1]
	}

	rarityMatch := tp.rarity.FindStringSubmatch(title)
	if len(rarityMatch) < 2 {
		return titleFields{}, "rarity not found in title"
	}

	return titleFields{
		CardNumber: numberMatch[1],
		SetCode:    set.Code,
		Rarity:     rarityMatch[1],
	}, ""
}

func alternation(codes []string) string {
	quoted := make([]string, len(codes))
	for i, c := range codes {
		quoted[i] = regexp.QuoteMeta(c)
	}
	return strings.Join(quoted, "|")
}

var pricePattern = regexp.MustCompile(`[¥￥][\s\x{00a0}]*([\d,]+)`)

// parseYen parses "3,500" style amounts.
func parseYen(s string) (int64, bool) {
	v, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func pageTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// visibleText concatenates text nodes in document order, skipping script and
// style content.
func visibleText(sel *goquery.Selection) string {
	var b strings.Builder

	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "#text":
				b.WriteString(c.Text())
			case "script", "style", "noscript", "template":
			default:
				walk(c)
			}
		})
	}
	walk(sel)

	return b.String()
}
