// Package ingest turns external packing-list documents into validated item
// lists. The engine never parses documents itself; adapters here feed it.
package ingest

import (
	"errors"
	"io"

	"loadplan/internal/model"
)

// ItemSource is the minimal interface for packing-list item sources.
type ItemSource interface {
	Name() string
	Extract(r io.Reader) (Result, error)
}

// Result carries the extracted items plus per-row diagnostics. Errors holds
// rows that were skipped; the extraction as a whole still succeeds as long
// as at least one usable item came out.
type Result struct {
	Items    []model.Item      `json:"items"`
	Columns  map[string]string `json:"columns,omitempty"` // role -> matched header
	Errors   []string          `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

var (
	ErrMissingColumns = errors.New("missing required columns")
	ErrNoItems        = errors.New("no usable items")
)

// Summarize aggregates a load for upload responses.
func Summarize(items []model.Item) model.FleetAnalysis {
	a := model.FleetAnalysis{ItemCount: len(items)}
	for _, it := range items {
		q := it.Quantity
		if q < 1 {
			q = 1
		}
		a.TotalUnits += q
		a.TotalVolume += it.UnitVolume() * float64(q)
		a.TotalWeight += it.Weight * float64(q)
		if it.Length > a.MaxLength {
			a.MaxLength = it.Length
		}
		if it.Width > a.MaxWidth {
			a.MaxWidth = it.Width
		}
		if it.Height > a.MaxHeight {
			a.MaxHeight = it.Height
		}
		if it.Weight > a.MaxUnitWeight {
			a.MaxUnitWeight = it.Weight
		}
	}
	return a
}
