package extractor

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/clearledger/vat-extract/internal/domain/entity"
	"github.com/clearledger/vat-extract/internal/patterns"
)

// tabularConfidence is reported when at least one tax column was detected;
// the spreadsheet path is deterministic, so detection is the only source of
// uncertainty.
const tabularConfidence = 0.9

// TabularExtractor parses spreadsheet exports into a grid and runs the
// tax-column detector over them.
type TabularExtractor struct {
	logger *zap.Logger
}

// NewTabularExtractor creates a tabular extractor.
func NewTabularExtractor(logger *zap.Logger) *TabularExtractor {
	return &TabularExtractor{logger: logger}
}

// Capability returns CapabilityTabular.
func (e *TabularExtractor) Capability() Capability {
	return CapabilityTabular
}

// Extract opens the workbook, reads the first sheet into a 2-D grid and
// sums every detected tax column. The grand total across tax columns is the
// candidate VAT total for the document.
func (e *TabularExtractor) Extract(ctx context.Context, doc *entity.Document) (*entity.RawExtraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !doc.IsSpreadsheet() {
		return nil, fmt.Errorf("%w: tabular extractor cannot read %s", ErrUnsupportedFormat, doc.MimeType)
	}

	wb, err := excelize.OpenReader(bytes.NewReader(doc.Content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrMalformedDocument)
	}

	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	total, sums := patterns.SumTaxColumns(rows)
	raw := &entity.RawExtraction{
		Candidates: patterns.TaxColumnCandidates(sums),
	}
	if len(sums) > 0 {
		raw.TotalAmount = &total
		conf := tabularConfidence
		raw.Confidence = &conf
	}

	e.logger.Info("Tabular extraction completed",
		zap.String("document_id", doc.ID),
		zap.String("sheet", sheets[0]),
		zap.Int("rows", len(rows)),
		zap.Int("tax_columns", len(sums)),
		zap.Float64("total", total))
	return raw, nil
}
