package pipeline

import (
	"time"

	"github.com/clearledger/vat-extract/internal/domain/entity"
)

// Trail accumulates the ordered processing steps of one pipeline run. It is
// created per run and handed to the caller with the result; the pipeline
// keeps no reference afterwards.
type Trail struct {
	steps []entity.ProcessingStep
}

// NewTrail creates an empty audit trail.
func NewTrail() *Trail {
	return &Trail{}
}

// Record appends one step. started is when the step began; duration is
// derived from it.
func (t *Trail) Record(step string, success bool, started time.Time, detail string, fallbackUsed bool) {
	t.steps = append(t.steps, entity.ProcessingStep{
		Step:         step,
		Success:      success,
		Duration:     time.Since(started),
		Detail:       detail,
		FallbackUsed: fallbackUsed,
		Timestamp:    started,
	})
}

// Steps returns the recorded steps in order.
func (t *Trail) Steps() []entity.ProcessingStep {
	return t.steps
}
