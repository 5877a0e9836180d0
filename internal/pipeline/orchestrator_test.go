package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clearledger/vat-extract/internal/confidence"
	"github.com/clearledger/vat-extract/internal/domain/entity"
	"github.com/clearledger/vat-extract/internal/extractor"
	"github.com/clearledger/vat-extract/internal/health"
)

// scriptedExtractor returns a fixed raw extraction or error and counts calls.
type scriptedExtractor struct {
	cap   extractor.Capability
	raw   *entity.RawExtraction
	err   error
	calls int
}

func (s *scriptedExtractor) Capability() extractor.Capability { return s.cap }
func (s *scriptedExtractor) Extract(ctx context.Context, doc *entity.Document) (*entity.RawExtraction, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.raw, nil
}

func confidentRaw(conf float64, amounts ...float64) *entity.RawExtraction {
	raw := &entity.RawExtraction{Confidence: &conf}
	for _, a := range amounts {
		raw.Candidates = append(raw.Candidates, entity.CandidateAmount{Value: a, Source: "vision:vat_amount"})
	}
	return raw
}

func pdfDoc(category string) *entity.Document {
	return &entity.Document{
		ID:       "doc-pdf",
		FileName: "invoice.pdf",
		MimeType: "application/pdf",
		Category: category,
		Content:  []byte("Invoice text with €23.00 VAT"),
	}
}

func newOrchestrator(t *testing.T, monitor *health.Monitor, primaries ...extractor.Extractor) *Orchestrator {
	t.Helper()
	logger := zap.NewNop()
	registry, err := extractor.NewRegistry(extractor.NewFallbackExtractor(logger), primaries...)
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.RetryBackoff = time.Millisecond
	return NewOrchestrator(cfg, registry, monitor, confidence.NewEngine(logger), logger)
}

func healthyMonitor() *health.Monitor {
	return health.NewMonitor(health.DefaultConfig(), zap.NewNop())
}

func downMonitor(caps ...extractor.Capability) *health.Monitor {
	m := health.NewMonitor(health.DefaultConfig(), zap.NewNop())
	for _, c := range caps {
		m.Register(c, func(ctx context.Context) error { return errors.New("down") })
	}
	return m
}

func TestProcessPrimarySuccess(t *testing.T) {
	vision := &scriptedExtractor{cap: extractor.CapabilityAI, raw: confidentRaw(0.9, 23.00)}
	o := newOrchestrator(t, healthyMonitor(), vision)

	result, steps, err := o.Process(context.Background(), pdfDoc(entity.CategorySalesInvoice))
	require.NoError(t, err)

	assert.Equal(t, entity.MethodPrimaryAI, result.ProcessingMethod)
	assert.Equal(t, 0.9, result.Confidence)
	assert.Equal(t, []float64{23.00}, result.SalesVAT)
	assert.False(t, result.HasFlag(entity.FlagFallbackUsed))
	assert.False(t, result.ErrorRecovery.HadErrors)
	assert.Equal(t, 1, vision.calls)

	require.Len(t, steps, 2)
	assert.Equal(t, "select_primary", steps[0].Step)
	assert.Equal(t, "primary_attempt:ai", steps[1].Step)
	assert.True(t, steps[1].Success)
}

func TestProcessRetriesServiceErrors(t *testing.T) {
	vision := &scriptedExtractor{cap: extractor.CapabilityAI, err: extractor.ErrServiceUnavailable}
	o := newOrchestrator(t, healthyMonitor(), vision)

	result, steps, err := o.Process(context.Background(), pdfDoc(entity.CategorySalesInvoice))
	require.NoError(t, err)

	assert.Equal(t, 3, vision.calls, "service errors are retried up to 3 times")
	assert.Equal(t, entity.MethodFallback, result.ProcessingMethod)
	assert.True(t, result.HasFlag(entity.FlagFallbackUsed))
	assert.True(t, result.ErrorRecovery.HadErrors)
	assert.Contains(t, result.ErrorRecovery.FallbacksUsed, "regex_fallback")

	var attemptSteps int
	for _, s := range steps {
		if s.Step == "primary_attempt:ai" {
			attemptSteps++
		}
	}
	assert.Equal(t, 3, attemptSteps)
}

func TestProcessMalformedShortCircuits(t *testing.T) {
	vision := &scriptedExtractor{cap: extractor.CapabilityAI, err: fmt.Errorf("%w: bad bytes", extractor.ErrMalformedDocument)}
	o := newOrchestrator(t, healthyMonitor(), vision)

	result, _, err := o.Process(context.Background(), pdfDoc(entity.CategorySalesInvoice))
	require.NoError(t, err)

	assert.Equal(t, 1, vision.calls, "malformed documents are not retried")
	assert.Equal(t, entity.MethodFallback, result.ProcessingMethod)
}

func TestProcessSkipsUnhealthyPrimary(t *testing.T) {
	vision := &scriptedExtractor{cap: extractor.CapabilityAI, raw: confidentRaw(0.9, 23.00)}
	ocr := &scriptedExtractor{cap: extractor.CapabilityOCR, raw: confidentRaw(0.7, 15.00)}
	o := newOrchestrator(t, downMonitor(extractor.CapabilityAI), vision, ocr)

	result, _, err := o.Process(context.Background(), pdfDoc(entity.CategoryPurchaseInvoice))
	require.NoError(t, err)

	assert.Zero(t, vision.calls, "unhealthy capability is skipped without paying its timeout")
	assert.Equal(t, 1, ocr.calls)
	assert.Equal(t, entity.MethodPrimaryOCR, result.ProcessingMethod)
	assert.Equal(t, []float64{15.00}, result.PurchaseVAT)
	assert.Empty(t, result.SalesVAT)
}

func TestProcessAllCapabilitiesDownIsDeterministic(t *testing.T) {
	monitor := downMonitor(extractor.CapabilityAI, extractor.CapabilityOCR)
	vision := &scriptedExtractor{cap: extractor.CapabilityAI}
	ocr := &scriptedExtractor{cap: extractor.CapabilityOCR}
	o := newOrchestrator(t, monitor, vision, ocr)

	doc := pdfDoc(entity.CategorySalesInvoice)
	first, _, err := o.Process(context.Background(), doc)
	require.NoError(t, err)
	second, _, err := o.Process(context.Background(), doc)
	require.NoError(t, err)

	assert.Zero(t, vision.calls)
	assert.Zero(t, ocr.calls)
	assert.Equal(t, entity.MethodFallback, first.ProcessingMethod)
	assert.Equal(t, first.SalesVAT, second.SalesVAT)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.ValidationFlags, second.ValidationFlags)
	assert.Equal(t, first.ErrorRecovery, second.ErrorRecovery)
}

func TestProcessFallbackConfidenceCapped(t *testing.T) {
	o := newOrchestrator(t, downMonitor(extractor.CapabilityAI),
		&scriptedExtractor{cap: extractor.CapabilityAI})

	result, _, err := o.Process(context.Background(), pdfDoc(entity.CategorySalesInvoice))
	require.NoError(t, err)

	assert.LessOrEqual(t, result.Confidence, confidence.FallbackCap)
	assert.Equal(t, []float64{23.00}, result.SalesVAT, "fallback still finds currency-prefixed amounts")
}

func TestProcessSalvagesLowConfidencePrimaryData(t *testing.T) {
	// Primary returns data below the trust threshold; the fallback regex
	// finds nothing in the binary content. The salvaged primary data must
	// survive, flagged for manual review.
	vision := &scriptedExtractor{cap: extractor.CapabilityAI, raw: confidentRaw(0.1, 42.00)}
	o := newOrchestrator(t, healthyMonitor(), vision)

	doc := pdfDoc(entity.CategorySalesInvoice)
	doc.Content = []byte{0x00, 0x01, 0x02}

	result, _, err := o.Process(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, []float64{42.00}, result.SalesVAT)
	assert.Equal(t, "salvaged_low_confidence", result.ErrorRecovery.RecoveryMethod)
	assert.True(t, result.HasFlag(entity.FlagManualReviewRequired))
	assert.True(t, result.HasFlag(entity.FlagFallbackUsed))
}

func TestProcessMinimalResponseOnEmptyDocument(t *testing.T) {
	o := newOrchestrator(t, healthyMonitor())

	doc := &entity.Document{
		ID:       "doc-empty",
		MimeType: "application/octet-stream",
		Category: entity.CategoryOther,
		Content:  nil,
	}

	result, steps, err := o.Process(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, "minimal_response", result.ErrorRecovery.RecoveryMethod)
	assert.True(t, result.HasFlag(entity.FlagManualReviewRequired))
	assert.LessOrEqual(t, result.Confidence, confidence.EmptyCap)
	assert.NotEmpty(t, steps)
}

func TestProcessCancellationPropagates(t *testing.T) {
	vision := &scriptedExtractor{cap: extractor.CapabilityAI, err: extractor.ErrServiceUnavailable}
	o := newOrchestrator(t, healthyMonitor(), vision)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, _, err := o.Process(ctx, pdfDoc(entity.CategorySalesInvoice))
	assert.Nil(t, result)
	assert.True(t, IsCancellation(err))
}

func TestProcessAuditTrailRecordsDegradeReason(t *testing.T) {
	vision := &scriptedExtractor{cap: extractor.CapabilityAI, err: extractor.ErrServiceUnavailable}
	o := newOrchestrator(t, healthyMonitor(), vision)

	_, steps, err := o.Process(context.Background(), pdfDoc(entity.CategorySalesInvoice))
	require.NoError(t, err)

	var degrade *entity.ProcessingStep
	for i := range steps {
		if steps[i].Step == "degrade" {
			degrade = &steps[i]
		}
	}
	require.NotNil(t, degrade)
	assert.Contains(t, degrade.Detail, "failed after 3 attempts")
	assert.True(t, degrade.FallbackUsed)
}

func TestStateMachineRejectsIllegalTransitions(t *testing.T) {
	m := newMachine()
	require.NoError(t, m.to(StatePrimaryAttempt))
	require.Error(t, m.to(StateFallbackAttempt), "PRIMARY_ATTEMPT cannot jump to FALLBACK_ATTEMPT")
	require.NoError(t, m.to(StateDegrade))
	require.NoError(t, m.to(StateFallbackAttempt))
	require.NoError(t, m.to(StateSuccessDegraded))
	assert.True(t, m.current.IsTerminal())
}
