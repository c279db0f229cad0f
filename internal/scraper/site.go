package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/toreca-arbitrage/internal/catalog"
	"github.com/maltedev/toreca-arbitrage/internal/models"
)

const (
	JapanTorecaBaseURL = "https://shop.japan-toreca.com"
	TorecacampBaseURL  = "https://torecacamp-pokemon.com"
)

// Query is one search against a retail site. Rarity is empty for set-wide
// searches.
type Query struct {
	SetCode string
	Rarity  string
	Term    string
}

func (q Query) String() string {
	if q.Rarity == "" {
		return q.SetCode
	}
	return q.SetCode + " " + q.Rarity
}

// Site knows the search surface of one retail source.
type Site interface {
	Source() models.Source
	BaseURL() string
	Queries() []Query
	SearchURL(q Query, page int) string
	// ParseSearch returns the listing hrefs on a result page as found in the
	// markup, plus whether a next page exists.
	ParseSearch(html string, q Query) ([]string, bool, error)
}

func searchURL(base, term string, page int) string {
	return fmt.Sprintf("%s/search?q=%s&page=%d", strings.TrimRight(base, "/"), url.QueryEscape(term), page)
}

func hasNextAnchor(doc *goquery.Document) bool {
	found := false
	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), "次") {
			found = true
			return false
		}
		return true
	})
	return found
}

// JapanTorecaSite searches per set and keeps only best-tier listings of the
// queried set, so worse tiers are never visited.
type JapanTorecaSite struct {
	baseURL  string
	catalog  *catalog.Catalog
	setCode  *regexp.Regexp
	rarities []string
}

func NewJapanTorecaSite(baseURL string, cat *catalog.Catalog) *JapanTorecaSite {
	if baseURL == "" {
		baseURL = JapanTorecaBaseURL
	}

	codes := make([]string, 0, len(cat.Sets))
	for _, code := range cat.SetCodes() {
		codes = append(codes, regexp.QuoteMeta(code))
	}

	var rarities []string
	for _, r := range cat.CrawlRarities() {
		rarities = append(rarities, r.Code)
	}

	return &JapanTorecaSite{
		baseURL:  baseURL,
		catalog:  cat,
		setCode:  regexp.MustCompile(`(?i)\[(` + strings.Join(codes, "|") + `)\]`),
		rarities: rarities,
	}
}

func (s *JapanTorecaSite) Source() models.Source { return models.SourceJapanToreca }

func (s *JapanTorecaSite) BaseURL() string { return s.baseURL }

func (s *JapanTorecaSite) Queries() []Query {
	var queries []Query
	for _, set := range s.catalog.CrawlSets() {
		queries = append(queries, Query{SetCode: set.Code, Term: set.Search})
	}
	return queries
}

func (s *JapanTorecaSite) SearchURL(q Query, page int) string {
	return searchURL(s.baseURL, q.Term, page)
}

func (s *JapanTorecaSite) ParseSearch(html string, q Query) ([]string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse search page: %w", err)
	}

	marker := s.catalog.BestCondition().Marker

	var links []string
	doc.Find(`a[href*="/products/"]`).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return
		}

		text := a.Text()
		if !strings.Contains(text, marker) || !s.hasRarity(text) {
			return
		}

		m := s.setCode.FindStringSubmatch(text)
		if len(m) < 2 || !strings.EqualFold(m[1], q.SetCode) {
			return
		}

		links = append(links, href)
	})

	return links, hasNextAnchor(doc), nil
}

func (s *JapanTorecaSite) hasRarity(text string) bool {
	for _, r := range s.rarities {
		if strings.Contains(text, r) {
			return true
		}
	}
	return false
}

// TorecacampSite searches per set and rarity. Listing links carry an "rc_"
// product handle.
type TorecacampSite struct {
	baseURL string
	catalog *catalog.Catalog
}

func NewTorecacampSite(baseURL string, cat *catalog.Catalog) *TorecacampSite {
	if baseURL == "" {
		baseURL = TorecacampBaseURL
	}
	return &TorecacampSite{baseURL: baseURL, catalog: cat}
}

func (s *TorecacampSite) Source() models.Source { return models.SourceTorecacamp }

func (s *TorecacampSite) BaseURL() string { return s.baseURL }

func (s *TorecacampSite) Queries() []Query {
	var queries []Query
	for _, set := range s.catalog.CrawlSets() {
		for _, r := range s.catalog.CrawlRarities() {
			queries = append(queries, Query{
				SetCode: set.Code,
				Rarity:  r.Code,
				Term:    set.Search + " " + r.Code,
			})
		}
	}
	return queries
}

func (s *TorecacampSite) SearchURL(q Query, page int) string {
	return searchURL(s.baseURL, q.Term, page)
}

func (s *TorecacampSite) ParseSearch(html string, q Query) ([]string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse search page: %w", err)
	}

	var links []string
	doc.Find(`a[href*="/products/rc_"]`).Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok && href != "" {
			links = append(links, href)
		}
	})

	hasNext := doc.Find(`link[rel="next"], a[rel="next"]`).Length() > 0 || hasNextAnchor(doc)

	return links, hasNext, nil
}
