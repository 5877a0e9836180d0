package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTaxColumn(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected bool
	}{
		{"tax amt abbreviated", "Item Tax Amt.", true},
		{"tax amount full", "Shipping Tax Amount", true},
		{"case insensitive", "TOTAL TAX AMT", true},
		{"tax without amount keyword", "Tax Rate", false},
		{"amount without tax keyword", "Net Amount", false},
		{"unrelated header", "Description", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTaxColumn(tt.header))
		})
	}
}

func TestDetectTaxColumns(t *testing.T) {
	header := []string{"Date", "Description", "Item Tax Amt.", "Net", "Shipping Tax Amt."}
	assert.Equal(t, []int{2, 4}, DetectTaxColumns(header))
}

func TestSumTaxColumns(t *testing.T) {
	grid := [][]string{
		{"Item Tax Amt.", "Shipping Tax Amt."},
		{"23.00", "3.45"},
		{"46.00", "3.45"},
	}

	total, sums := SumTaxColumns(grid)
	assert.InDelta(t, 75.90, total, 0.001)

	require.Len(t, sums, 2)
	assert.InDelta(t, 69.00, sums[0].Total, 0.001)
	assert.InDelta(t, 6.90, sums[1].Total, 0.001)
}

func TestSumTaxColumnsExactCents(t *testing.T) {
	// 0.1 + 0.2 style inputs must not drift; accumulation is in cents.
	grid := [][]string{{"Tax Amt"}}
	for i := 0; i < 100; i++ {
		grid = append(grid, []string{"0.10"})
	}
	total, _ := SumTaxColumns(grid)
	assert.Equal(t, 10.00, total)
}

func TestSumTaxColumnsSkipsNonNumericAndShortRows(t *testing.T) {
	grid := [][]string{
		{"Description", "Tax Amount"},
		{"widgets", "10.00"},
		{"subtotal row"},
		{"freight", "n/a"},
		{"more widgets", "2.50"},
	}
	total, sums := SumTaxColumns(grid)
	assert.InDelta(t, 12.50, total, 0.001)
	require.Len(t, sums, 1)
	assert.Equal(t, 1, sums[0].Column)
}

func TestSumTaxColumnsNoTaxColumns(t *testing.T) {
	grid := [][]string{
		{"Date", "Description"},
		{"2024-01-01", "widgets"},
	}
	total, sums := SumTaxColumns(grid)
	assert.Zero(t, total)
	assert.Empty(t, sums)
}
