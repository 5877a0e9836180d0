// Package patterns holds the pure heuristics the extraction pipeline is
// built on: VAT regex tiers, amount sanity filtering, candidate
// deduplication and the spreadsheet tax-column detector. Everything here is
// deterministic and free of external calls.
package patterns

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/clearledger/vat-extract/internal/domain/entity"
)

const (
	// MaxCandidates bounds the candidate list handed to downstream review.
	MaxCandidates = 5

	// MinAmount and MaxAmount bound plausible VAT amounts in euro. Values
	// outside this band are treated as noise (line-item IDs, phone numbers).
	MinAmount = 0.0
	MaxAmount = 100000.0

	// FallbackTextCap bounds how much text the loose fallback tier scans,
	// keeping worst-case latency bounded on large documents.
	FallbackTextCap = 10000
)

// Primary tier: amounts adjacent to a VAT/tax keyword, optionally currency
// prefixed. These fire on structured invoice text.
var primaryPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"vat_keyword", regexp.MustCompile(`(?i)\bVAT\b[^0-9€$£\n]{0,24}[€$£]?\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)},
	{"tax_keyword", regexp.MustCompile(`(?i)\btax\b[^0-9€$£\n]{0,24}[€$£]?\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)},
	{"total_keyword", regexp.MustCompile(`(?i)\btotal\b[^0-9€$£\n]{0,24}[€$£]\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)},
}

// Fallback tier: the loosest possible match, any currency-prefixed number.
// Only run when the pipeline is already degraded.
var fallbackPattern = regexp.MustCompile(`[€$£]\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)

// vatRatePattern matches a percentage adjacent to a VAT keyword,
// e.g. "VAT @ 23%", "VAT 13.5 %".
var vatRatePattern = regexp.MustCompile(`(?i)\bVAT\b[^0-9\n]{0,12}([0-9]{1,2}(?:\.[0-9])?)\s*%`)

// ExtractVATAmounts runs the primary regex tier over text and returns the
// matched amounts with the pattern name as provenance. The result is not
// filtered or deduplicated; callers compose FilterSane and Dedupe.
func ExtractVATAmounts(text string) []entity.CandidateAmount {
	var out []entity.CandidateAmount
	for _, p := range primaryPatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			if v, ok := ParseAmount(m[1]); ok {
				out = append(out, entity.CandidateAmount{Value: v, Source: p.name})
			}
		}
	}
	return out
}

// ExtractCurrencyAmounts runs the fallback regex tier: any currency-prefixed
// number anywhere in text. Input is truncated to FallbackTextCap first.
func ExtractCurrencyAmounts(text string) []entity.CandidateAmount {
	text = TruncateForFallback(text)
	var out []entity.CandidateAmount
	for _, m := range fallbackPattern.FindAllStringSubmatch(text, -1) {
		if v, ok := ParseAmount(m[1]); ok {
			out = append(out, entity.CandidateAmount{Value: v, Source: "currency_prefix"})
		}
	}
	return out
}

// ExtractVATRate returns the first VAT percentage found in text, or nil.
func ExtractVATRate(text string) *float64 {
	m := vatRatePattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	rate, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &rate
}

// ParseAmount parses a human-formatted amount ("1,234.56") into a float64.
func ParseAmount(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// TruncateForFallback caps text at FallbackTextCap characters.
func TruncateForFallback(text string) string {
	if len(text) <= FallbackTextCap {
		return text
	}
	return text[:FallbackTextCap]
}
