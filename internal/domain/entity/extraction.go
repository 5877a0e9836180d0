package entity

import "time"

// CandidateAmount is a numeric amount found by an extractor, together with
// the pattern or column that produced it.
type CandidateAmount struct {
	Value  float64 `json:"value"`
	Source string  `json:"source"`
}

// RawExtraction is the untyped output of a single extractor attempt, before
// scoring and validation.
type RawExtraction struct {
	Text       string            `json:"text"`
	Candidates []CandidateAmount `json:"candidates"`
	// TotalAmount is set when the extractor derives a document-level total
	// itself (vision structured output, spreadsheet tax-column sum).
	TotalAmount *float64 `json:"total_amount,omitempty"`
	VATRate     *float64 `json:"vat_rate,omitempty"`
	// Confidence is the extractor's own quality hint in [0,1], nil when the
	// extractor does not report one.
	Confidence *float64 `json:"confidence,omitempty"`
}

// ErrorRecovery records what went wrong during a pipeline run and how the
// pipeline recovered.
type ErrorRecovery struct {
	HadErrors      bool     `json:"had_errors"`
	RecoveryMethod string   `json:"recovery_method"`
	FallbacksUsed  []string `json:"fallbacks_used"`
}

// ExtractionResult is the canonical output of the pipeline, immutable once
// produced. The pipeline always produces one; the worst case is an
// empty-data, minimum-confidence result flagged MANUAL_REVIEW_REQUIRED.
type ExtractionResult struct {
	DocumentID        string        `json:"document_id"`
	SalesVAT          []float64     `json:"sales_vat"`
	PurchaseVAT       []float64     `json:"purchase_vat"`
	TotalAmount       *float64      `json:"total_amount"`
	VATRate           *float64      `json:"vat_rate"`
	Confidence        float64       `json:"confidence"`
	DocumentType      string        `json:"document_type"`
	ProcessingMethod  string        `json:"processing_method"`
	ValidationFlags   []string      `json:"validation_flags"`
	IrishVATCompliant bool          `json:"irish_vat_compliant"`
	ErrorRecovery     ErrorRecovery `json:"error_recovery"`
	ProcessedAt       time.Time     `json:"processed_at"`
}

// HasFlag reports whether the result carries the given validation flag.
func (r *ExtractionResult) HasFlag(flag string) bool {
	for _, f := range r.ValidationFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// ProcessingStep is one ordered entry in the audit trail for a pipeline run.
type ProcessingStep struct {
	Step         string        `json:"step"`
	Success      bool          `json:"success"`
	Duration     time.Duration `json:"duration"`
	Detail       string        `json:"detail"`
	FallbackUsed bool          `json:"fallback_used"`
	Timestamp    time.Time     `json:"timestamp"`
}
