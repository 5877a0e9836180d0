// Package extractor defines the uniform extraction contract and the adapter
// for each backing capability: vision AI, OCR, spreadsheet parsing and
// plain text. Adapters are stateless between calls; timeouts and
// cancellation arrive through the context.
package extractor

import (
	"context"

	"github.com/clearledger/vat-extract/internal/domain/entity"
)

// Capability identifies a backing extraction capability. The set is fixed
// at compile time; dispatch is through the Registry, not string lookup.
type Capability string

const (
	CapabilityAI        Capability = "ai"
	CapabilityOCR       Capability = "ocr"
	CapabilityTabular   Capability = "tabular"
	CapabilityPlainText Capability = "plaintext"
	CapabilityFallback  Capability = "fallback"
)

// Extractor is the uniform contract every adapter implements. Extract
// returns a RawExtraction or one of the taxonomy errors; it must respect
// context cancellation.
type Extractor interface {
	Capability() Capability
	Extract(ctx context.Context, doc *entity.Document) (*entity.RawExtraction, error)
}
