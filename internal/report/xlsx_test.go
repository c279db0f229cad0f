package report

import (
	"bytes"
	"testing"

	"github.com/maltedev/toreca-arbitrage/internal/arbitrage"
	"github.com/maltedev/toreca-arbitrage/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteXLSX(t *testing.T) {
	lowest := int64(800)
	source := models.SourceTorecacamp
	usd := 5.36
	margin := 123.9
	inStock := true

	items := []arbitrage.Opportunity{
		{
			MarketCard: models.MarketCard{
				ID:           "bb-2",
				Name:         "Excadrill ex",
				CardNumber:   "171/086",
				Rarity:       "Special Art Rare",
				SetName:      "SV11B: Black Bolt",
				Prices:       models.MarketPrice{Market: 12},
				TCGPlayerURL: "https://tcgplayer.com/2",
			},
			Match: arbitrage.Match{
				JapanToreca:  &arbitrage.SourcePrice{PriceJPY: 1000},
				Torecacamp:   &arbitrage.SourcePrice{PriceJPY: 800, InStock: true},
				LowestPrice:  &lowest,
				LowestSource: &source,
			},
			LowestUSD:    &usd,
			ProfitMargin: &margin,
			Category:     arbitrage.CategoryPerfect,
			InStock:      &inStock,
		},
		{
			MarketCard: models.MarketCard{
				ID:         "wf-1",
				Name:       "Reshiram ex",
				CardNumber: "173/086",
				SetName:    "SV11W: White Flare",
				Prices:     models.MarketPrice{Market: 80},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, items))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	cell := func(axis string) string {
		v, err := f.GetCellValue(SheetName, axis)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, "Name", cell("A1"))
	assert.Equal(t, "Profit %", cell("J1"))

	assert.Equal(t, "Excadrill ex", cell("A2"))
	assert.Equal(t, "171/086", cell("B2"))
	assert.Equal(t, "1000", cell("F2"))
	assert.Equal(t, "800", cell("G2"))
	assert.Equal(t, "torecacamp", cell("H2"))
	assert.Equal(t, "123.9", cell("J2"))
	assert.Equal(t, "perfect", cell("K2"))
	assert.Equal(t, "yes", cell("L2"))

	assert.Equal(t, "Reshiram ex", cell("A3"))
	assert.Equal(t, "", cell("F3"))
	assert.Equal(t, "", cell("H3"))
	assert.Equal(t, "", cell("J3"))

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestWriteXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Name", rows[0][0])
}
