package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"loadplan/internal/model"
)

// The row pipeline is shared by every tabular adapter: spreadsheets and CSV
// exports both reduce to a string grid before items come out.

// rolePatterns is ordered by detection priority: earlier roles claim their
// column first so loose patterns (single-letter tokens) cannot steal a
// column from a more specific role.
var rolePatterns = []struct {
	role string
	re   *regexp.Regexp
}{
	{"reference", regexp.MustCompile(`ref(erence)?|\bcode\b|\bsku\b|article|\bpart\b|numero|\bid\b|\bitem\b`)},
	{"description", regexp.MustCompile(`desc(ription)?|libelle|designation|\bnom\b|\bname\b|produit|product|title`)},
	{"length", regexp.MustCompile(`long(ueur)?|length|\blg\b|\bl\b`)},
	{"width", regexp.MustCompile(`larg(eur)?|width|\bw\b`)},
	{"height", regexp.MustCompile(`haut(eur)?|height|\bht\b|\bh\b`)},
	{"weight", regexp.MustCompile(`poids|weight|masse|\bmass\b|\bkg\b|\bpds\b`)},
	{"quantity", regexp.MustCompile(`quantit[ey]|\bqte\b|\bqty\b|\bnb\b|nombre|count|pieces?|units?`)},
}

var requiredRoles = []string{"reference", "length", "width", "height", "weight"}

// headerWords marks a row as a plausible header during the preamble scan.
var headerWords = []string{"ref", "desc", "long", "larg", "haut", "poids", "qte", "length", "width", "height", "weight", "qty", "name"}

var numberRe = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

var accentFolder = strings.NewReplacer("é", "e", "è", "e", "ê", "e", "à", "a", "ô", "o", "û", "u", "ç", "c", "°", "")

var fragileWords = []string{"fragile", "verre", "glass", "ceramic", "ceramique", "breakable", "delicate", "sensible"}

var noStackWords = []string{"fragile", "liquide", "liquid", "cylindrique", "rond", "sphere", "ball", "unstackable"}

// columns maps semantic roles to grid column indices (-1 = absent).
type columns struct {
	reference   int
	description int
	length      int
	width       int
	height      int
	weight      int
	quantity    int
}

// FromRows turns a string grid into items: finds the header row past any
// preamble, maps columns by pattern, converts units from header hints and
// emits one model.Item per usable row. Rows it cannot use are reported in
// Result.Errors; zero usable rows is ErrNoItems.
func FromRows(rows [][]string) (Result, error) {
	res := Result{}
	hdr := FindHeaderRow(rows)
	if hdr < 0 {
		hdr = 0
	}
	if hdr >= len(rows) {
		return res, fmt.Errorf("%w: no rows", ErrNoItems)
	}
	cols, matched := detectColumns(rows[hdr])
	res.Columns = matched
	var missing []string
	for _, role := range requiredRoles {
		if _, ok := matched[role]; !ok {
			missing = append(missing, role)
		}
	}
	if len(missing) > 0 {
		return res, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	lf := dimFactor(matched["length"])
	wf := dimFactor(matched["width"])
	hf := dimFactor(matched["height"])
	mf := weightFactor(matched["weight"])

	byRef := map[string]int{} // reference -> index into res.Items
	for i := hdr + 1; i < len(rows); i++ {
		row := rows[i]
		if isEmptyRow(row) {
			continue
		}
		ref := getCell(row, cols.reference)
		if ref == "" || strings.EqualFold(ref, "nan") {
			continue
		}
		desc := getCell(row, cols.description)
		if desc == "" {
			desc = ref
		}
		length, ok1 := parseNumber(getCell(row, cols.length))
		width, ok2 := parseNumber(getCell(row, cols.width))
		height, ok3 := parseNumber(getCell(row, cols.height))
		weight, ok4 := parseNumber(getCell(row, cols.weight))
		if !ok1 || !ok2 || !ok3 || !ok4 || length <= 0 || width <= 0 || height <= 0 || weight <= 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %s has missing or non-positive dimensions", i+1, ref))
			continue
		}
		qty := 1
		if v, ok := parseNumber(getCell(row, cols.quantity)); ok && int(v) > 1 {
			qty = int(v)
		}
		item := model.Item{
			ID:       ref,
			Name:     desc,
			Length:   length * lf,
			Width:    width * wf,
			Height:   height * hf,
			Weight:   weight * mf,
			Quantity: qty,
		}
		descLower := strings.ToLower(desc)
		item.Fragile = containsAny(descLower, fragileWords)
		if containsAny(descLower, noStackWords) {
			no := false
			item.Stackable = &no
		}

		if j, seen := byRef[ref]; seen {
			prev := &res.Items[j]
			if prev.Length == item.Length && prev.Width == item.Width && prev.Height == item.Height && prev.Weight == item.Weight {
				prev.Quantity += item.Quantity
				res.Warnings = append(res.Warnings, fmt.Sprintf("row %d: merged duplicate reference %s", i+1, ref))
			} else {
				res.Errors = append(res.Errors, fmt.Sprintf("row %d: reference %s repeats with different dimensions", i+1, ref))
			}
			continue
		}
		byRef[ref] = len(res.Items)
		res.Items = append(res.Items, item)
	}

	if len(res.Items) == 0 {
		return res, ErrNoItems
	}
	return res, nil
}

// FindHeaderRow returns the first row that looks like a header: at least
// three filled cells and one known header word. -1 when nothing matches.
func FindHeaderRow(rows [][]string) int {
	for i, row := range rows {
		filled := 0
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				filled++
			}
		}
		if filled < 3 {
			continue
		}
		joined := normalizeCell(strings.Join(row, " "))
		for _, w := range headerWords {
			if strings.Contains(joined, w) {
				return i
			}
		}
	}
	return -1
}

func detectColumns(header []string) (columns, map[string]string) {
	cols := columns{reference: -1, description: -1, length: -1, width: -1, height: -1, weight: -1, quantity: -1}
	matched := map[string]string{}
	claimed := map[int]bool{}
	for _, rp := range rolePatterns {
		best, bestScore := -1, 0
		for i, cell := range header {
			if claimed[i] {
				continue
			}
			m := rp.re.FindString(normalizeCell(cell))
			if len(m) > bestScore {
				best, bestScore = i, len(m)
			}
		}
		if best < 0 {
			continue
		}
		claimed[best] = true
		matched[rp.role] = strings.TrimSpace(header[best])
		switch rp.role {
		case "reference":
			cols.reference = best
		case "description":
			cols.description = best
		case "length":
			cols.length = best
		case "width":
			cols.width = best
		case "height":
			cols.height = best
		case "weight":
			cols.weight = best
		case "quantity":
			cols.quantity = best
		}
	}
	return cols, matched
}

func normalizeCell(s string) string {
	return accentFolder.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// dimFactor converts a dimension to centimeters based on a unit token in
// the header ("Longueur (mm)" and the like). No token means the value is
// already in cm.
func dimFactor(header string) float64 {
	switch unitToken(header, "mm", "cm", "m") {
	case "mm":
		return 0.1
	case "m":
		return 100
	}
	return 1
}

// weightFactor converts a weight to kilograms. Tokens are matched whole so
// the "g" inside "kg" (or inside "weight") cannot misfire.
func weightFactor(header string) float64 {
	switch unitToken(header, "kg", "g", "t") {
	case "g":
		return 0.001
	case "t":
		return 1000
	}
	return 1
}

func unitToken(header string, units ...string) string {
	toks := strings.FieldsFunc(strings.ToLower(header), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, u := range units {
		for _, t := range toks {
			if t == u {
				return u
			}
		}
	}
	return ""
}

func parseNumber(cell string) (float64, bool) {
	m := numberRe.FindString(cell)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// getCell safely retrieves a trimmed cell value by column index.
func getCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
