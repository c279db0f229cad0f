package parser

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/toreca-arbitrage/internal/catalog"
)

// Offer is one priced condition variant of a listing.
type Offer struct {
	Name     string
	PriceJPY int64
	InStock  bool
}

// OfferStrategy collects offers from one embedded payload kind. Strategies
// are tried in order and the first one yielding a tier-matching offer wins.
type OfferStrategy struct {
	Name   string
	Offers func(doc *goquery.Document) []Offer
}

// SelectOffer walks condition tiers in priority order and returns the first
// priced offer whose name carries the tier marker. A better tier always wins
// over a cheaper worse one.
func SelectOffer(offers []Offer, tiers []catalog.Condition) (Offer, catalog.Condition, bool) {
	for _, tier := range tiers {
		for _, offer := range offers {
			if offer.PriceJPY > 0 && strings.Contains(offer.Name, tier.Marker) {
				return offer, tier, true
			}
		}
	}
	return Offer{}, catalog.Condition{}, false
}

type ldProduct struct {
	Offers json.RawMessage `json:"offers"`
}

type ldOffer struct {
	Name         string    `json:"name"`
	Price        flexPrice `json:"price"`
	Availability string    `json:"availability"`
}

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)`)

// flexPrice accepts both "3500.0" and 3500. A value without a leading number
// decodes as 0 so one unpriced offer does not discard its siblings.
type flexPrice float64

func (f *flexPrice) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(strings.Trim(string(data), `"`))
	s = strings.ReplaceAll(s, ",", "")

	*f = 0
	if v, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(v, 0) && !math.IsNaN(v) {
		*f = flexPrice(v)
		return nil
	}
	if m := leadingNumber.FindString(s); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			*f = flexPrice(v)
		}
	}
	return nil
}

// jsonLDOffers reads every application/ld+json block. A block is either one
// product object or an array of them; "offers" is an object or an array.
func jsonLDOffers(doc *goquery.Document) []Offer {
	var offers []Offer

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := bytes.TrimSpace([]byte(s.Text()))
		if len(raw) == 0 {
			return
		}

		var products []ldProduct
		if raw[0] == '[' {
			if err := json.Unmarshal(raw, &products); err != nil {
				return
			}
		} else {
			var product ldProduct
			if err := json.Unmarshal(raw, &product); err != nil {
				return
			}
			products = []ldProduct{product}
		}

		for _, product := range products {
			for _, o := range decodeLDOffers(product.Offers) {
				offers = append(offers, Offer{
					Name:     o.Name,
					PriceJPY: int64(math.Round(float64(o.Price))),
					InStock:  o.Availability == "" || strings.Contains(o.Availability, "InStock"),
				})
			}
		}
	})

	return offers
}

func decodeLDOffers(raw json.RawMessage) []ldOffer {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	if raw[0] == '[' {
		var list []ldOffer
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil
		}
		return list
	}

	var single ldOffer
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil
	}
	return []ldOffer{single}
}

const analyticsMarker = "var meta ="

type analyticsMeta struct {
	Product struct {
		Variants []struct {
			Name        string      `json:"name"`
			PublicTitle string      `json:"public_title"`
			Price       json.Number `json:"price"`
		} `json:"variants"`
	} `json:"product"`
}

// analyticsOffers reads the storefront analytics payload. Variant prices are
// in minor units (yen x 100). Listing a variant there implies it is in stock.
func analyticsOffers(doc *goquery.Document) []Offer {
	var offers []Offer

	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		idx := strings.Index(text, analyticsMarker)
		if idx < 0 {
			return true
		}

		var meta analyticsMeta
		dec := json.NewDecoder(strings.NewReader(text[idx+len(analyticsMarker):]))
		dec.UseNumber()
		if err := dec.Decode(&meta); err != nil {
			return true
		}

		for _, v := range meta.Product.Variants {
			minor, err := v.Price.Float64()
			if err != nil {
				continue
			}
			offers = append(offers, Offer{
				Name:     strings.TrimSpace(v.Name + " " + v.PublicTitle),
				PriceJPY: int64(math.Round(minor / 100)),
				InStock:  true,
			})
		}
		return false
	})

	return offers
}
