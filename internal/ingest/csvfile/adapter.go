// Package csvfile extracts packing-list items from CSV exports. French
// spreadsheet tools ship semicolon-separated files with comma decimals, so
// the delimiter is sniffed per file instead of assumed.
package csvfile

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"loadplan/internal/ingest"
)

// Adapter reads .csv packing lists. Dimensions normalize to centimeters,
// weights to kilograms.
type Adapter struct{}

func (a Adapter) Name() string { return "csv" }

// Extract sniffs the delimiter from the first line, reads the full grid
// and feeds it through the shared pipeline.
func (a Adapter) Extract(r io.Reader) (ingest.Result, error) {
	res := ingest.Result{}
	data, err := io.ReadAll(r)
	if err != nil {
		return res, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = sniffDelimiter(data)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return res, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return res, fmt.Errorf("%w: file has no rows", ingest.ErrNoItems)
	}
	return ingest.FromRows(rows)
}

// sniffDelimiter picks the separator that occurs most on the first line.
// Comma wins ties so plain CSV stays the default.
func sniffDelimiter(data []byte) rune {
	line := string(data)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	best, bestN := ',', strings.Count(line, ",")
	for _, c := range []rune{';', '\t'} {
		if n := strings.Count(line, string(c)); n > bestN {
			best, bestN = c, n
		}
	}
	return best
}
