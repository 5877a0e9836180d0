package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearledger/vat-extract/internal/domain/entity"
)

func TestIsSaneAmount(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		expected bool
	}{
		{"typical vat amount", 23.00, true},
		{"just inside upper bound", 99999.99, true},
		{"zero rejected", 0, false},
		{"negative rejected", -5.00, false},
		{"upper bound rejected", 100000, false},
		{"invoice id mistaken for amount", 2024000123, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsSaneAmount(tt.value))
		})
	}
}

func TestFilterSane(t *testing.T) {
	in := []entity.CandidateAmount{
		{Value: 23.00, Source: "vat_keyword"},
		{Value: 0, Source: "vat_keyword"},
		{Value: 250000, Source: "currency_prefix"},
		{Value: 13.50, Source: "tax_keyword"},
	}
	out := FilterSane(in)
	require.Len(t, out, 2)
	assert.Equal(t, 23.00, out[0].Value)
	assert.Equal(t, 13.50, out[1].Value)
}

func TestDedupe(t *testing.T) {
	in := []entity.CandidateAmount{
		{Value: 23.00, Source: "vat_keyword"},
		{Value: 23.00, Source: "currency_prefix"},
		{Value: 123.00, Source: "total_keyword"},
		{Value: 13.50, Source: "tax_keyword"},
	}
	out := Dedupe(in)
	require.Len(t, out, 3)
	// Sorted descending, first provenance kept for duplicates.
	assert.Equal(t, 123.00, out[0].Value)
	assert.Equal(t, 23.00, out[1].Value)
	assert.Equal(t, "vat_keyword", out[1].Source)
	assert.Equal(t, 13.50, out[2].Value)
}

func TestDedupeCapsCandidateList(t *testing.T) {
	var in []entity.CandidateAmount
	for i := 1; i <= 10; i++ {
		in = append(in, entity.CandidateAmount{Value: float64(i), Source: "currency_prefix"})
	}
	out := Dedupe(in)
	require.Len(t, out, MaxCandidates)
	assert.Equal(t, 10.0, out[0].Value)
	assert.Equal(t, 6.0, out[MaxCandidates-1].Value)
}

func TestReadabilityRatio(t *testing.T) {
	assert.Equal(t, 0.0, ReadabilityRatio(""))
	assert.Equal(t, 1.0, ReadabilityRatio("VAT 23.00 due"))

	garbage := "\x01\x02\x03\x04"
	assert.Equal(t, 0.0, ReadabilityRatio(garbage))

	mixed := ReadabilityRatio("VAT\x01\x02\x03")
	assert.Greater(t, mixed, 0.0)
	assert.Less(t, mixed, 1.0)
}
