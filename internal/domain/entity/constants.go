package entity

// Document category constants, assigned by the user at upload time
const (
	CategorySalesInvoice    = "SALES_INVOICE"
	CategoryPurchaseInvoice = "PURCHASE_INVOICE"
	CategoryBankStatement   = "BANK_STATEMENT"
	CategoryOther           = "OTHER"
)

// Processing method constants identifying which tier produced the final result
const (
	MethodPrimaryAI      = "PRIMARY_AI"
	MethodPrimaryOCR     = "PRIMARY_OCR"
	MethodPrimaryTabular = "PRIMARY_TABULAR"
	MethodFallback       = "FALLBACK"
)

// Validation flag constants attached to extraction results
const (
	FlagLowConfidence        = "LOW_CONFIDENCE"
	FlagFallbackUsed         = "FALLBACK_PROCESSING_USED"
	FlagManualReviewRequired = "MANUAL_REVIEW_REQUIRED"
	FlagAmountOutOfBounds    = "AMOUNT_OUT_OF_BOUNDS"
	FlagNoAmountsFound       = "NO_AMOUNTS_FOUND"
)

// Document processing status constants
const (
	StatusUploaded   = "UPLOADED"
	StatusProcessing = "PROCESSING"
	StatusProcessed  = "PROCESSED"
)

// IrishVATRates is the set of VAT rates permitted under Irish Revenue
// rules: standard, reduced, second reduced, livestock flat-rate and zero.
var IrishVATRates = []float64{23, 13.5, 9, 4.8, 0}

// IsValidIrishVATRate reports whether rate exactly matches a permitted
// Irish VAT rate. Absence of a rate is handled by the caller; this only
// answers for detected rates.
func IsValidIrishVATRate(rate float64) bool {
	for _, r := range IrishVATRates {
		if rate == r {
			return true
		}
	}
	return false
}

// IsValidCategory reports whether category is a recognised document category.
func IsValidCategory(category string) bool {
	switch category {
	case CategorySalesInvoice, CategoryPurchaseInvoice, CategoryBankStatement, CategoryOther:
		return true
	}
	return false
}
