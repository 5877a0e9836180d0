package patterns

import (
	"fmt"
	"math"
	"strings"

	"github.com/clearledger/vat-extract/internal/domain/entity"
)

// IsTaxColumn reports whether a spreadsheet header names a tax-amount
// column. A column qualifies only when its lowercased header carries both a
// tax keyword and an amount keyword, e.g. "Item Tax Amt." or
// "Shipping Tax Amount".
func IsTaxColumn(header string) bool {
	h := strings.ToLower(header)
	if !strings.Contains(h, "tax") {
		return false
	}
	return strings.Contains(h, "amt") || strings.Contains(h, "amount")
}

// DetectTaxColumns returns the indexes of tax-amount columns in a header row.
func DetectTaxColumns(headerRow []string) []int {
	var cols []int
	for i, h := range headerRow {
		if IsTaxColumn(h) {
			cols = append(cols, i)
		}
	}
	return cols
}

// TaxColumnSum holds the per-column sum produced by SumTaxColumns.
type TaxColumnSum struct {
	Header string
	Column int
	Total  float64
}

// SumTaxColumns detects tax columns in the first row of grid and sums every
// numeric cell below each header. Accumulation happens in integer cents so
// the grand total reproduces the exact decimal sum; the result is compared
// cent-for-cent against externally reported totals downstream.
func SumTaxColumns(grid [][]string) (float64, []TaxColumnSum) {
	if len(grid) == 0 {
		return 0, nil
	}
	cols := DetectTaxColumns(grid[0])
	if len(cols) == 0 {
		return 0, nil
	}

	perColumn := make([]TaxColumnSum, len(cols))
	centsByCol := make([]int64, len(cols))
	for i, c := range cols {
		perColumn[i] = TaxColumnSum{Header: grid[0][c], Column: c}
	}

	var grandCents int64
	for _, row := range grid[1:] {
		for i, c := range cols {
			if c >= len(row) {
				continue
			}
			v, ok := ParseAmount(row[c])
			if !ok {
				continue
			}
			cents := int64(math.Round(v * 100))
			centsByCol[i] += cents
			grandCents += cents
		}
	}

	for i := range perColumn {
		perColumn[i].Total = float64(centsByCol[i]) / 100
	}
	return float64(grandCents) / 100, perColumn
}

// TaxColumnCandidates converts per-column sums into candidate amounts with
// the column header as provenance.
func TaxColumnCandidates(sums []TaxColumnSum) []entity.CandidateAmount {
	out := make([]entity.CandidateAmount, 0, len(sums))
	for _, s := range sums {
		out = append(out, entity.CandidateAmount{
			Value:  s.Total,
			Source: fmt.Sprintf("column:%s", s.Header),
		})
	}
	return out
}
