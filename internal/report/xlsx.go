// Package report exports opportunities as a spreadsheet.
package report

import (
	"fmt"
	"io"

	"github.com/maltedev/toreca-arbitrage/internal/arbitrage"
	"github.com/xuri/excelize/v2"
)

const SheetName = "Opportunities"

var header = []interface{}{
	"Name", "Number", "Set", "Rarity", "Market USD",
	"Japan-Toreca JPY", "Torecacamp JPY", "Lowest Source", "Lowest USD",
	"Profit %", "Category", "In Stock", "TCGPlayer",
}

// WriteXLSX writes items, in order, as one sheet with a frozen header row.
func WriteXLSX(w io.Writer, items []arbitrage.Opportunity) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, item := range items {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := rowFor(item)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func rowFor(o arbitrage.Opportunity) []interface{} {
	row := []interface{}{
		o.Name, o.CardNumber, o.SetName, o.Rarity, o.Prices.Market,
		nil, nil, nil, nil,
		nil, string(o.Category), nil, o.TCGPlayerURL,
	}

	if o.Match.JapanToreca != nil {
		row[5] = o.Match.JapanToreca.PriceJPY
	}
	if o.Match.Torecacamp != nil {
		row[6] = o.Match.Torecacamp.PriceJPY
	}
	if o.Match.LowestSource != nil {
		row[7] = string(*o.Match.LowestSource)
	}
	if o.LowestUSD != nil {
		row[8] = *o.LowestUSD
	}
	if o.ProfitMargin != nil {
		row[9] = *o.ProfitMargin
	}
	if o.InStock != nil {
		if *o.InStock {
			row[11] = "yes"
		} else {
			row[11] = "no"
		}
	}

	return row
}
