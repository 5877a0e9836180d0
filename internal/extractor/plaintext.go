package extractor

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"github.com/clearledger/vat-extract/internal/domain/entity"
	"github.com/clearledger/vat-extract/internal/patterns"
)

// PlainTextExtractor is the last-resort primary path for content that is
// already text: text-based PDFs, CSV exports and plain text uploads. It
// runs the primary regex tier directly on the decoded content with no
// external dependency.
type PlainTextExtractor struct {
	logger *zap.Logger
}

// NewPlainTextExtractor creates a plain-text extractor.
func NewPlainTextExtractor(logger *zap.Logger) *PlainTextExtractor {
	return &PlainTextExtractor{logger: logger}
}

// Capability returns CapabilityPlainText.
func (e *PlainTextExtractor) Capability() Capability {
	return CapabilityPlainText
}

// Extract decodes the document to text and runs the primary regex tier.
func (e *PlainTextExtractor) Extract(ctx context.Context, doc *entity.Document) (*entity.RawExtraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, err := e.decode(doc)
	if err != nil {
		return nil, err
	}

	raw := &entity.RawExtraction{
		Text:       text,
		Candidates: patterns.ExtractVATAmounts(text),
		VATRate:    patterns.ExtractVATRate(text),
	}

	e.logger.Info("Plain-text extraction completed",
		zap.String("document_id", doc.ID),
		zap.Int("text_length", len(text)),
		zap.Int("candidates", len(raw.Candidates)))
	return raw, nil
}

// decode extracts the text layer from PDFs and decodes everything else as
// UTF-8.
func (e *PlainTextExtractor) decode(doc *entity.Document) (string, error) {
	if doc.IsPDF() {
		pdf, err := fitz.NewFromMemory(doc.Content)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		defer pdf.Close()

		var sb strings.Builder
		for page := 0; page < pdf.NumPage(); page++ {
			pageText, err := pdf.Text(page)
			if err != nil {
				continue
			}
			sb.WriteString(pageText)
			sb.WriteByte('\n')
		}
		return sb.String(), nil
	}

	if !utf8.Valid(doc.Content) {
		return "", fmt.Errorf("%w: content is not valid text", ErrMalformedDocument)
	}
	return string(doc.Content), nil
}
