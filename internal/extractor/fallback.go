package extractor

import (
	"context"
	"encoding/base64"

	"go.uber.org/zap"

	"github.com/clearledger/vat-extract/internal/domain/entity"
	"github.com/clearledger/vat-extract/internal/patterns"
)

// FallbackExtractor is the guaranteed-to-succeed minimal responder. It has
// no external dependency: it salvages whatever readable text it can from
// the raw bytes (decoding base64 payloads when they look like one), runs
// the loosest regex tier over a bounded prefix and never returns an error.
type FallbackExtractor struct {
	logger *zap.Logger
}

// NewFallbackExtractor creates a fallback extractor.
func NewFallbackExtractor(logger *zap.Logger) *FallbackExtractor {
	return &FallbackExtractor{logger: logger}
}

// Capability returns CapabilityFallback. The fallback has no backing
// service and is not health-monitored.
func (e *FallbackExtractor) Capability() Capability {
	return CapabilityFallback
}

// Extract always succeeds. The only error it can return is the caller's
// own cancellation.
func (e *FallbackExtractor) Extract(ctx context.Context, doc *entity.Document) (*entity.RawExtraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := e.salvageText(doc.Content)
	raw := &entity.RawExtraction{
		Text:       text,
		Candidates: patterns.ExtractCurrencyAmounts(text),
		VATRate:    patterns.ExtractVATRate(patterns.TruncateForFallback(text)),
	}

	e.logger.Info("Fallback extraction completed",
		zap.String("document_id", doc.ID),
		zap.Int("candidates", len(raw.Candidates)))
	return raw, nil
}

// salvageText turns raw bytes into something scannable. A payload that
// decodes cleanly as base64 is unwrapped first; everything else is taken
// verbatim, truncated to the fallback cap.
func (e *FallbackExtractor) salvageText(content []byte) string {
	text := string(content)
	if decoded, err := base64.StdEncoding.DecodeString(text); err == nil && len(decoded) > 0 {
		if patterns.ReadabilityRatio(string(decoded)) > patterns.ReadabilityRatio(text) {
			text = string(decoded)
		}
	}
	return patterns.TruncateForFallback(text)
}
