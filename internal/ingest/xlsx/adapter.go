// Package xlsx extracts packing-list items from Excel workbooks. Real-world
// sheets arrive with preamble rows, mixed French/English headers and units
// embedded in column names; the shared row pipeline handles all three, this
// adapter only picks the sheet.
package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"loadplan/internal/ingest"
)

// Adapter reads .xlsx packing lists. Dimensions normalize to centimeters,
// weights to kilograms.
type Adapter struct{}

func (a Adapter) Name() string { return "xlsx" }

// Extract parses the workbook: picks the first sheet with a recognizable
// header row (falling back to the first non-empty sheet) and feeds its rows
// through the shared pipeline.
func (a Adapter) Extract(r io.Reader) (ingest.Result, error) {
	res := ingest.Result{}
	f, err := excelize.OpenReader(r)
	if err != nil {
		return res, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var rows [][]string
	var sheet string
	for _, s := range f.GetSheetList() {
		rs, err := f.GetRows(s)
		if err != nil {
			return res, fmt.Errorf("read sheet %s: %w", s, err)
		}
		if len(rs) == 0 {
			continue
		}
		if sheet == "" {
			sheet, rows = s, rs
		}
		if ingest.FindHeaderRow(rs) >= 0 {
			sheet, rows = s, rs
			break
		}
	}
	if sheet == "" {
		return res, fmt.Errorf("%w: workbook has no data", ingest.ErrNoItems)
	}

	res, err = ingest.FromRows(rows)
	if err != nil {
		return res, fmt.Errorf("sheet %s: %w", sheet, err)
	}
	return res, nil
}
