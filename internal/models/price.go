package models

import (
	"strings"
	"time"
)

type Source string

const (
	SourceJapanToreca Source = "japan-toreca"
	SourceTorecacamp  Source = "torecacamp"
)

func (s Source) IsValid() bool {
	return s == SourceJapanToreca || s == SourceTorecacamp
}

func Sources() []Source {
	return []Source{SourceJapanToreca, SourceTorecacamp}
}

// PriceRecord is one listing snapshot from a retail source. The JSON names
// are the on-disk snapshot format.
type PriceRecord struct {
	CardNumber  string    `json:"cardNumber"`
	SetCode     string    `json:"setCode"`
	Rarity      string    `json:"rarity"`
	PriceJPY    int64     `json:"price_jpy"`
	Condition   string    `json:"condition,omitempty"`
	InStock     bool      `json:"in_stock"`
	LastUpdated time.Time `json:"last_updated"`
	URL         string    `json:"url"`
}

func NewPriceRecord(url string) *PriceRecord {
	return &PriceRecord{
		URL:         url,
		LastUpdated: time.Now(),
	}
}

// Key identifies a record within one source snapshot.
func (r *PriceRecord) Key() string {
	return strings.ToUpper(r.SetCode) + "-" + r.CardNumber + "-" + strings.ToUpper(r.Rarity)
}

func (r *PriceRecord) Validate() []string {
	var errors []string

	if r.CardNumber == "" {
		errors = append(errors, "cardNumber is required")
	}

	if r.SetCode == "" {
		errors = append(errors, "setCode is required")
	}

	if r.Rarity == "" {
		errors = append(errors, "rarity is required")
	}

	if r.PriceJPY <= 0 {
		errors = append(errors, "price_jpy must be positive")
	}

	if r.URL == "" {
		errors = append(errors, "url is required")
	}

	return errors
}
