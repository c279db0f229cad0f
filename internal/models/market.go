package models

// MarketCard is a sell-side record from the market price feed. It is never
// mutated after ingestion.
type MarketCard struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	CardNumber     string      `json:"cardNumber"`
	Rarity         string      `json:"rarity"`
	SetName        string      `json:"setName"`
	ImageCdnURL400 string      `json:"imageCdnUrl400,omitempty"`
	ImageCdnURL    string      `json:"imageCdnUrl,omitempty"`
	Prices         MarketPrice `json:"prices"`
	TCGPlayerURL   string      `json:"tcgPlayerUrl"`
}

type MarketPrice struct {
	Market      float64 `json:"market"`
	Low         float64 `json:"low"`
	Sellers     int     `json:"sellers"`
	Listings    int     `json:"listings"`
	LastUpdated string  `json:"lastUpdated"`
}

type FeedMetadata struct {
	Total            int          `json:"total"`
	Count            int          `json:"count"`
	Limit            int          `json:"limit"`
	Offset           int          `json:"offset"`
	HasMore          bool         `json:"hasMore"`
	Language         string       `json:"language,omitempty"`
	APICallsConsumed APICallUsage `json:"apiCallsConsumed"`
}

type APICallUsage struct {
	Total       int            `json:"total"`
	Breakdown   APICallDetails `json:"breakdown"`
	CostPerCard int            `json:"costPerCard"`
}

type APICallDetails struct {
	Cards   int `json:"cards"`
	History int `json:"history"`
	Ebay    int `json:"ebay"`
}

func (c *MarketCard) Validate() []string {
	var errors []string

	if c.ID == "" {
		errors = append(errors, "id is required")
	}

	if c.CardNumber == "" {
		errors = append(errors, "cardNumber is required")
	}

	if c.SetName == "" {
		errors = append(errors, "setName is required")
	}

	if c.Prices.Market < 0 || c.Prices.Low < 0 {
		errors = append(errors, "prices must not be negative")
	}

	return errors
}

// Add merges usage counters of another feed response into m.
func (m *FeedMetadata) Add(other FeedMetadata) {
	m.Total += other.Total
	m.Count += other.Count
	m.Limit += other.Limit
	m.HasMore = m.HasMore || other.HasMore
	if m.Language == "" {
		m.Language = other.Language
	}
	m.APICallsConsumed.Total += other.APICallsConsumed.Total
	m.APICallsConsumed.Breakdown.Cards += other.APICallsConsumed.Breakdown.Cards
	m.APICallsConsumed.Breakdown.History += other.APICallsConsumed.Breakdown.History
	m.APICallsConsumed.Breakdown.Ebay += other.APICallsConsumed.Breakdown.Ebay
	if m.APICallsConsumed.CostPerCard == 0 {
		m.APICallsConsumed.CostPerCard = other.APICallsConsumed.CostPerCard
	}
}
