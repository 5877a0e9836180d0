package extractor

import (
	"fmt"

	"github.com/clearledger/vat-extract/internal/domain/entity"
)

// Registry holds the extractor for each capability. It is built once at
// startup; dispatch is by typed capability, not string lookup.
type Registry struct {
	extractors map[Capability]Extractor
	fallback   Extractor
}

// NewRegistry creates a registry from the given primary extractors and the
// mandatory fallback responder.
func NewRegistry(fallback Extractor, primaries ...Extractor) (*Registry, error) {
	if fallback == nil {
		return nil, fmt.Errorf("registry requires a fallback extractor")
	}
	r := &Registry{
		extractors: make(map[Capability]Extractor, len(primaries)),
		fallback:   fallback,
	}
	for _, ex := range primaries {
		cap := ex.Capability()
		if _, dup := r.extractors[cap]; dup {
			return nil, fmt.Errorf("duplicate extractor for capability %s", cap)
		}
		r.extractors[cap] = ex
	}
	return r, nil
}

// Get returns the extractor registered for a capability, if any.
func (r *Registry) Get(cap Capability) (Extractor, bool) {
	ex, ok := r.extractors[cap]
	return ex, ok
}

// Fallback returns the guaranteed-to-succeed minimal responder.
func (r *Registry) Fallback() Extractor {
	return r.fallback
}

// SelectPrimary returns the ordered primary extractors to try for a
// document, driven by its declared MIME type: spreadsheets go to the
// tabular extractor, images and PDFs to vision first and OCR second, and
// everything else to the plain-text path. Unregistered capabilities are
// skipped; an empty chain means only the fallback applies.
func (r *Registry) SelectPrimary(doc *entity.Document) []Extractor {
	var order []Capability
	switch {
	case doc.IsSpreadsheet():
		order = []Capability{CapabilityTabular}
	case doc.IsPDF(), doc.IsImage():
		order = []Capability{CapabilityAI, CapabilityOCR}
	default:
		order = []Capability{CapabilityPlainText}
	}

	chain := make([]Extractor, 0, len(order))
	for _, cap := range order {
		if ex, ok := r.extractors[cap]; ok {
			chain = append(chain, ex)
		}
	}
	return chain
}
