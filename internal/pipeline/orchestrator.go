// Package pipeline drives one document through the degradation state
// machine: the best-fit healthy primary extractor first, then the
// dependency-free fallback tier. Every run terminates with a valid
// ExtractionResult; the only failure the caller ever sees is its own
// cancellation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clearledger/vat-extract/internal/confidence"
	"github.com/clearledger/vat-extract/internal/domain/entity"
	"github.com/clearledger/vat-extract/internal/extractor"
	"github.com/clearledger/vat-extract/internal/health"
)

// Config tunes the orchestrator.
type Config struct {
	// Budget is the per-document wall-clock budget covering all attempted
	// tiers.
	Budget time.Duration
	// MaxAttempts is how many times one primary adapter is tried before it
	// is considered failed for the run.
	MaxAttempts int
	// RetryBackoff is the initial delay between attempts; it doubles per
	// retry.
	RetryBackoff time.Duration
	// FallbackBudget bounds the deterministic fallback tier when the main
	// budget is already spent.
	FallbackBudget time.Duration
}

// DefaultConfig returns the defaults: 60s budget, 3 attempts per primary
// adapter.
func DefaultConfig() Config {
	return Config{
		Budget:         60 * time.Second,
		MaxAttempts:    3,
		RetryBackoff:   200 * time.Millisecond,
		FallbackBudget: 5 * time.Second,
	}
}

// Orchestrator is the top-level pipeline driver.
type Orchestrator struct {
	cfg      Config
	registry *extractor.Registry
	monitor  *health.Monitor
	engine   *confidence.Engine
	logger   *zap.Logger
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(cfg Config, registry *extractor.Registry, monitor *health.Monitor, engine *confidence.Engine, logger *zap.Logger) *Orchestrator {
	def := DefaultConfig()
	if cfg.Budget <= 0 {
		cfg.Budget = def.Budget
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if cfg.FallbackBudget <= 0 {
		cfg.FallbackBudget = def.FallbackBudget
	}
	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		monitor:  monitor,
		engine:   engine,
		logger:   logger,
	}
}

// primaryOutcome carries what a primary tier left behind when it did not
// produce an accepted result: salvaged raw data (low-confidence attempts
// keep their partial data) and the reason for degrading.
type primaryOutcome struct {
	salvaged       *entity.RawExtraction
	salvagedMethod string
	reason         string
}

// Process runs one document through the pipeline and returns the result
// with its audit trail. The only error it returns is the caller's own
// cancellation; every other failure mode degrades to a valid result.
func (o *Orchestrator) Process(ctx context.Context, doc *entity.Document) (*entity.ExtractionResult, []entity.ProcessingStep, error) {
	trail := NewTrail()
	m := newMachine()
	recovery := entity.ErrorRecovery{FallbacksUsed: []string{}}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.Budget)
	defer cancel()

	var outcome primaryOutcome
	primary, degradeReason := o.selectPrimary(runCtx, doc, trail)
	if primary == nil {
		recovery.HadErrors = true
		outcome.reason = degradeReason
		_ = m.to(StateDegrade)
	} else {
		_ = m.to(StatePrimaryAttempt)
		result, po := o.attemptPrimary(runCtx, doc, primary, trail)
		if result != nil {
			_ = m.to(StateSuccess)
			o.logResult(doc, m.current, result)
			return result, trail.Steps(), nil
		}
		if ctx.Err() != nil {
			// Caller cancelled mid-flight: abandon, write nothing.
			return nil, trail.Steps(), ctx.Err()
		}
		recovery.HadErrors = true
		outcome = po
		_ = m.to(StateDegrade)
	}

	trail.Record("degrade", true, time.Now(), outcome.reason, true)
	_ = m.to(StateFallbackAttempt)

	result, err := o.attemptFallback(ctx, runCtx, doc, outcome, &recovery, trail)
	if err != nil {
		return nil, trail.Steps(), err
	}

	if len(result.SalesVAT) > 0 || len(result.PurchaseVAT) > 0 || result.TotalAmount != nil {
		_ = m.to(StateSuccessDegraded)
	} else {
		_ = m.to(StateMinimalResponse)
	}
	o.logResult(doc, m.current, result)
	return result, trail.Steps(), nil
}

func (o *Orchestrator) logResult(doc *entity.Document, state State, result *entity.ExtractionResult) {
	o.logger.Info("Document processed",
		zap.String("document_id", doc.ID),
		zap.String("state", state.String()),
		zap.String("method", result.ProcessingMethod),
		zap.Float64("confidence", result.Confidence))
}

// selectPrimary picks the first healthy primary adapter for the document.
// Skipping unhealthy capabilities here is what saves the run from paying a
// full request timeout against a known-down service.
func (o *Orchestrator) selectPrimary(ctx context.Context, doc *entity.Document, trail *Trail) (extractor.Extractor, string) {
	started := time.Now()
	chain := o.registry.SelectPrimary(doc)
	if len(chain) == 0 {
		reason := fmt.Sprintf("no adapter registered for %s", doc.MimeType)
		trail.Record("select_primary", false, started, reason, false)
		return nil, reason
	}

	var skipped []string
	for _, ex := range chain {
		cap := ex.Capability()
		if o.monitor.IsHealthy(ctx, cap) {
			detail := fmt.Sprintf("selected %s", cap)
			if len(skipped) > 0 {
				detail = fmt.Sprintf("selected %s (skipped unhealthy: %s)", cap, strings.Join(skipped, ","))
			}
			trail.Record("select_primary", true, started, detail, false)
			return ex, ""
		}
		skipped = append(skipped, string(cap))
	}

	reason := fmt.Sprintf("all primary capabilities unhealthy: %s", strings.Join(skipped, ","))
	trail.Record("select_primary", false, started, reason, false)
	return nil, reason
}

// attemptPrimary tries one adapter up to MaxAttempts times. It returns an
// accepted result, or the outcome describing why the tier is being
// abandoned and any partial data worth keeping.
func (o *Orchestrator) attemptPrimary(ctx context.Context, doc *entity.Document, ex extractor.Extractor, trail *Trail) (*entity.ExtractionResult, primaryOutcome) {
	cap := ex.Capability()
	method := methodFor(cap)
	step := fmt.Sprintf("primary_attempt:%s", cap)
	backoff := o.cfg.RetryBackoff

	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, primaryOutcome{reason: fmt.Sprintf("budget exhausted during %s", cap)}
		}

		started := time.Now()
		raw, err := ex.Extract(ctx, doc)
		if err == nil {
			result := o.engine.Evaluate(doc, raw, method, entity.ErrorRecovery{FallbacksUsed: []string{}})
			if confidence.Accepted(result) {
				trail.Record(step, true, started, fmt.Sprintf("attempt %d succeeded, confidence %.2f", attempt, result.Confidence), false)
				return result, primaryOutcome{}
			}
			reason := fmt.Sprintf("confidence %.2f below %.2f", result.Confidence, confidence.ReviewThreshold)
			trail.Record(step, false, started, reason, false)
			return nil, primaryOutcome{salvaged: raw, salvagedMethod: method, reason: reason}
		}

		lastErr = err
		trail.Record(step, false, started, fmt.Sprintf("attempt %d failed: %v", attempt, err), false)

		if !extractor.IsRetryable(err) {
			// Malformed or unsupported content will not improve on retry;
			// short-circuit to the fallback path.
			return nil, primaryOutcome{reason: err.Error()}
		}
		if attempt < o.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return nil, primaryOutcome{reason: fmt.Sprintf("budget exhausted during %s", cap)}
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, primaryOutcome{reason: fmt.Sprintf("%s failed after %d attempts: %v", cap, o.cfg.MaxAttempts, lastErr)}
}

// attemptFallback runs the deterministic fallback tier. It is defined to
// always succeed; if the run budget is already spent it gets a small fresh
// budget of its own, because only the caller's cancellation may abort a
// run. When the fallback salvages nothing but a low-confidence primary
// attempt did, the primary's partial data is kept instead of discarded.
func (o *Orchestrator) attemptFallback(callerCtx, runCtx context.Context, doc *entity.Document, outcome primaryOutcome, recovery *entity.ErrorRecovery, trail *Trail) (*entity.ExtractionResult, error) {
	fbCtx := runCtx
	if runCtx.Err() != nil {
		if callerCtx.Err() != nil {
			return nil, callerCtx.Err()
		}
		var cancel context.CancelFunc
		fbCtx, cancel = context.WithTimeout(callerCtx, o.cfg.FallbackBudget)
		defer cancel()
	}

	recovery.FallbacksUsed = append(recovery.FallbacksUsed, "regex_fallback")
	started := time.Now()
	raw, err := o.registry.Fallback().Extract(fbCtx, doc)
	if err != nil {
		if callerCtx.Err() != nil {
			return nil, callerCtx.Err()
		}
		// The fallback extractor has no failure mode besides cancellation,
		// but a minimal response is still owed.
		raw = &entity.RawExtraction{}
	}

	method := entity.MethodFallback
	recovery.RecoveryMethod = "regex_fallback"
	switch {
	case len(raw.Candidates) == 0 && outcome.salvaged != nil && len(outcome.salvaged.Candidates) > 0:
		raw = outcome.salvaged
		method = outcome.salvagedMethod
		recovery.RecoveryMethod = "salvaged_low_confidence"
	case len(raw.Candidates) == 0:
		recovery.RecoveryMethod = "minimal_response"
	}

	result := o.engine.Evaluate(doc, raw, method, *recovery)
	trail.Record("fallback_attempt", true, started,
		fmt.Sprintf("%s with %d candidates", recovery.RecoveryMethod, len(raw.Candidates)), true)
	return result, nil
}

// methodFor maps a capability to its processing-method tag. Plain text
// shares the OCR tag: both hand text to the primary regex tier and no
// separate method is exposed for it.
func methodFor(cap extractor.Capability) string {
	switch cap {
	case extractor.CapabilityAI:
		return entity.MethodPrimaryAI
	case extractor.CapabilityOCR, extractor.CapabilityPlainText:
		return entity.MethodPrimaryOCR
	case extractor.CapabilityTabular:
		return entity.MethodPrimaryTabular
	default:
		return entity.MethodFallback
	}
}

// IsCancellation reports whether err is a caller-supplied cancellation.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
