package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriceRecordKey(t *testing.T) {
	a := PriceRecord{SetCode: "sv11b", CardNumber: "171/086", Rarity: "sar"}
	b := PriceRecord{SetCode: "SV11B", CardNumber: "171/086", Rarity: "SAR"}
	assert.Equal(t, "SV11B-171/086-SAR", a.Key())
	assert.Equal(t, a.Key(), b.Key())
}

func TestPriceRecordValidate(t *testing.T) {
	valid := PriceRecord{
		CardNumber: "171/086",
		SetCode:    "SV11B",
		Rarity:     "SAR",
		PriceJPY:   3980,
		URL:        "https://shop.japan-toreca.com/products/x",
	}
	assert.Empty(t, valid.Validate())

	empty := PriceRecord{}
	assert.Len(t, empty.Validate(), 5)

	free := valid
	free.PriceJPY = 0
	assert.Equal(t, []string{"price_jpy must be positive"}, free.Validate())
}

func TestSourceIsValid(t *testing.T) {
	assert.True(t, SourceJapanToreca.IsValid())
	assert.True(t, SourceTorecacamp.IsValid())
	assert.False(t, Source("mercari").IsValid())
	assert.Equal(t, []Source{SourceJapanToreca, SourceTorecacamp}, Sources())
}

func TestMarketCardValidate(t *testing.T) {
	card := MarketCard{ID: "1", CardNumber: "171/086", SetName: "SV11B: Black Bolt"}
	assert.Empty(t, card.Validate())

	card.Prices.Low = -1
	card.ID = ""
	assert.Equal(t, []string{"id is required", "prices must not be negative"}, card.Validate())
}

func TestFeedMetadataAdd(t *testing.T) {
	var m FeedMetadata
	m.Add(FeedMetadata{
		Total:    12,
		Count:    2,
		Limit:    100,
		Language: "japanese",
		APICallsConsumed: APICallUsage{
			Total:       2,
			Breakdown:   APICallDetails{Cards: 2},
			CostPerCard: 1,
		},
	})
	m.Add(FeedMetadata{
		Total:   7,
		Count:   1,
		Limit:   100,
		HasMore: true,
		APICallsConsumed: APICallUsage{
			Total:       4,
			Breakdown:   APICallDetails{Cards: 1, History: 3},
			CostPerCard: 3,
		},
	})

	assert.Equal(t, 19, m.Total)
	assert.Equal(t, 3, m.Count)
	assert.Equal(t, 200, m.Limit)
	assert.True(t, m.HasMore)
	assert.Equal(t, "japanese", m.Language)
	assert.Equal(t, 6, m.APICallsConsumed.Total)
	assert.Equal(t, 3, m.APICallsConsumed.Breakdown.Cards)
	assert.Equal(t, 3, m.APICallsConsumed.Breakdown.History)
	assert.Equal(t, 1, m.APICallsConsumed.CostPerCard)
}
