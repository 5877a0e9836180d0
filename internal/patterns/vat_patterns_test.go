package patterns

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVATAmounts(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []float64
	}{
		{
			name:     "vat keyword with euro amount",
			text:     "Subtotal €100.00\nVAT (23%): €23.00\nTotal €123.00",
			expected: []float64{23.00, 123.00},
		},
		{
			name:     "tax keyword without currency symbol",
			text:     "Tax due: 13.50",
			expected: []float64{13.50},
		},
		{
			name:     "thousands separator",
			text:     "VAT amount €1,234.56",
			expected: []float64{1234.56},
		},
		{
			name:     "no keywords no matches",
			text:     "Invoice number 445566 dated 2024-01-05",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractVATAmounts(tt.text)
			var values []float64
			for _, c := range got {
				values = append(values, c.Value)
			}
			assert.Equal(t, tt.expected, values)
		})
	}
}

func TestExtractCurrencyAmounts(t *testing.T) {
	got := ExtractCurrencyAmounts("paid €45.50 then $12 and £3.99 ref 98765")
	require.Len(t, got, 3)
	assert.Equal(t, 45.50, got[0].Value)
	assert.Equal(t, 12.0, got[1].Value)
	assert.Equal(t, 3.99, got[2].Value)
	for _, c := range got {
		assert.Equal(t, "currency_prefix", c.Source)
	}
}

func TestExtractCurrencyAmountsTruncatesInput(t *testing.T) {
	// An amount placed beyond the cap must not be scanned.
	text := strings.Repeat("x", FallbackTextCap) + " €99.99"
	got := ExtractCurrencyAmounts(text)
	assert.Empty(t, got)
}

func TestExtractVATRate(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected *float64
	}{
		{"standard rate", "VAT @ 23%", ptr(23.0)},
		{"reduced rate with decimal", "VAT 13.5 %", ptr(13.5)},
		{"no rate present", "Total €100.00", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractVATRate(tt.text)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.expected, *got)
		})
	}
}

func TestParseAmount(t *testing.T) {
	v, ok := ParseAmount("1,234.56")
	require.True(t, ok)
	assert.Equal(t, 1234.56, v)

	_, ok = ParseAmount("not a number")
	assert.False(t, ok)

	_, ok = ParseAmount("")
	assert.False(t, ok)
}

func ptr(v float64) *float64 { return &v }
