package patterns

import (
	"sort"

	"github.com/clearledger/vat-extract/internal/domain/entity"
)

// IsSaneAmount reports whether v falls inside the plausible VAT band
// (0, 100000) exclusive on both ends.
func IsSaneAmount(v float64) bool {
	return v > MinAmount && v < MaxAmount
}

// FilterSane drops candidates outside the plausible VAT band.
func FilterSane(candidates []entity.CandidateAmount) []entity.CandidateAmount {
	out := make([]entity.CandidateAmount, 0, len(candidates))
	for _, c := range candidates {
		if IsSaneAmount(c.Value) {
			out = append(out, c)
		}
	}
	return out
}

// Dedupe collapses numerically equal candidates (first provenance wins),
// sorts the survivors descending by value and caps the list at
// MaxCandidates to bound downstream review effort.
func Dedupe(candidates []entity.CandidateAmount) []entity.CandidateAmount {
	seen := make(map[float64]bool, len(candidates))
	out := make([]entity.CandidateAmount, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.Value] {
			continue
		}
		seen[c.Value] = true
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	if len(out) > MaxCandidates {
		out = out[:MaxCandidates]
	}
	return out
}

// ReadabilityRatio returns the fraction of characters in text that are
// alphanumeric, currency or common punctuation. Garbage bytes (failed
// decodes, binary content) score low; clean invoice text scores high.
func ReadabilityRatio(text string) float64 {
	if len(text) == 0 {
		return 0
	}
	readable := 0
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			readable++
		case r == ' ', r == '.', r == ',', r == '%', r == '-', r == ':', r == '\n':
			readable++
		case r == '€', r == '$', r == '£':
			readable++
		}
	}
	total := 0
	for range text {
		total++
	}
	return float64(readable) / float64(total)
}
