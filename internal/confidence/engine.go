// Package confidence turns raw extractions into scored, flagged extraction
// results. It is the only place confidence is computed and the only place
// validation flags are attached.
package confidence

import (
	"time"

	"go.uber.org/zap"

	"github.com/clearledger/vat-extract/internal/domain/entity"
	"github.com/clearledger/vat-extract/internal/patterns"
)

const (
	// AcceptThreshold and ReviewThreshold implement the trust policy:
	// >= 0.6 accepted as-is, [0.3, 0.6) accepted but flagged low
	// confidence, < 0.3 flagged for manual review.
	AcceptThreshold = 0.6
	ReviewThreshold = 0.3

	// FallbackCap bounds the confidence of regex-only fallback extraction.
	FallbackCap = 0.3

	// EmptyCap bounds the confidence of a response with zero candidates.
	EmptyCap = 0.1

	// outOfBoundsPenalty is applied when extracted values failed sanity
	// bounds; data is kept, trust is downgraded.
	outOfBoundsPenalty = 0.8
)

// Score is the single confidence function for the whole pipeline. The
// extractor-reported confidence wins when present; otherwise the score
// derives from the readability of the extracted text. A result with no
// candidate amounts is capped at EmptyCap regardless of source.
func Score(extractorConfidence *float64, readability float64, candidateCount int) float64 {
	var score float64
	if extractorConfidence != nil {
		score = clamp(*extractorConfidence)
	} else {
		score = clamp(readability)
	}
	if candidateCount == 0 && score > EmptyCap {
		score = EmptyCap
	}
	return score
}

// Engine converts RawExtraction into ExtractionResult.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates a scoring engine.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger}
}

// Evaluate scores and validates one extraction attempt. method is the
// processing-method tag of the tier that produced raw; recovery describes
// any degradation that happened on the way here. Partial data is never
// discarded, only annotated.
func (e *Engine) Evaluate(doc *entity.Document, raw *entity.RawExtraction, method string, recovery entity.ErrorRecovery) *entity.ExtractionResult {
	filtered := patterns.FilterSane(raw.Candidates)
	outOfBounds := len(filtered) < len(raw.Candidates)
	candidates := patterns.Dedupe(filtered)

	// Bounds checks run before scoring so an insane total downgrades
	// confidence the same way insane candidates do.
	var total *float64
	if raw.TotalAmount != nil {
		if patterns.IsSaneAmount(*raw.TotalAmount) {
			t := *raw.TotalAmount
			total = &t
		} else {
			outOfBounds = true
		}
	}

	score := Score(raw.Confidence, patterns.ReadabilityRatio(raw.Text), len(candidates))
	if method == entity.MethodFallback && score > FallbackCap {
		score = FallbackCap
	}
	if outOfBounds {
		score *= outOfBoundsPenalty
	}

	result := &entity.ExtractionResult{
		DocumentID:       doc.ID,
		SalesVAT:         []float64{},
		PurchaseVAT:      []float64{},
		TotalAmount:      total,
		Confidence:       score,
		DocumentType:     doc.Category,
		ProcessingMethod: method,
		ValidationFlags:  []string{},
		ErrorRecovery:    recovery,
		ProcessedAt:      time.Now(),
	}

	// Amounts go into the bucket the user's declared category dictates,
	// never by content inference.
	amounts := make([]float64, 0, len(candidates))
	for _, c := range candidates {
		amounts = append(amounts, c.Value)
	}
	switch doc.Category {
	case entity.CategorySalesInvoice:
		result.SalesVAT = amounts
	case entity.CategoryPurchaseInvoice:
		result.PurchaseVAT = amounts
	}

	if raw.VATRate != nil {
		rate := *raw.VATRate
		result.VATRate = &rate
		result.IrishVATCompliant = entity.IsValidIrishVATRate(rate)
	}

	if outOfBounds {
		result.ValidationFlags = append(result.ValidationFlags, entity.FlagAmountOutOfBounds)
	}
	if len(candidates) == 0 && result.TotalAmount == nil {
		result.ValidationFlags = append(result.ValidationFlags, entity.FlagNoAmountsFound)
	}
	switch {
	case score < ReviewThreshold:
		result.ValidationFlags = append(result.ValidationFlags, entity.FlagManualReviewRequired)
	case score < AcceptThreshold:
		result.ValidationFlags = append(result.ValidationFlags, entity.FlagLowConfidence)
	}
	if len(recovery.FallbacksUsed) > 0 {
		result.ValidationFlags = append(result.ValidationFlags, entity.FlagFallbackUsed)
	}

	e.logger.Debug("Extraction evaluated",
		zap.String("document_id", doc.ID),
		zap.String("method", method),
		zap.Float64("confidence", score),
		zap.Strings("flags", result.ValidationFlags))
	return result
}

// Accepted reports whether a scored result clears the degradation
// threshold: results below ReviewThreshold trigger the next tier.
func Accepted(result *entity.ExtractionResult) bool {
	return result.Confidence >= ReviewThreshold
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
