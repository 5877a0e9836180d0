package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clearledger/vat-extract/internal/domain/entity"
	"github.com/clearledger/vat-extract/pkg/database"
)

// ResultRepository persists extraction results and their audit trails
type ResultRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewResultRepository creates a new result repository
func NewResultRepository(db *database.DB, logger *zap.Logger) *ResultRepository {
	return &ResultRepository{
		db:     db,
		logger: logger,
	}
}

// Save upserts the result for a document and replaces its audit trail in one
// transaction. Reprocessing a document overwrites the previous run.
func (r *ResultRepository) Save(ctx context.Context, result *entity.ExtractionResult, steps []entity.ProcessingStep) error {
	salesVAT, err := json.Marshal(result.SalesVAT)
	if err != nil {
		return fmt.Errorf("failed to encode sales vat: %w", err)
	}
	purchaseVAT, err := json.Marshal(result.PurchaseVAT)
	if err != nil {
		return fmt.Errorf("failed to encode purchase vat: %w", err)
	}
	flags, err := json.Marshal(result.ValidationFlags)
	if err != nil {
		return fmt.Errorf("failed to encode validation flags: %w", err)
	}
	fallbacks, err := json.Marshal(result.ErrorRecovery.FallbacksUsed)
	if err != nil {
		return fmt.Errorf("failed to encode fallbacks: %w", err)
	}

	return r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO extraction_results (
				document_id, sales_vat, purchase_vat, total_amount, vat_rate,
				confidence, document_type, processing_method, validation_flags,
				irish_vat_compliant, had_errors, recovery_method, fallbacks_used,
				processed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(document_id) DO UPDATE SET
				sales_vat = excluded.sales_vat,
				purchase_vat = excluded.purchase_vat,
				total_amount = excluded.total_amount,
				vat_rate = excluded.vat_rate,
				confidence = excluded.confidence,
				document_type = excluded.document_type,
				processing_method = excluded.processing_method,
				validation_flags = excluded.validation_flags,
				irish_vat_compliant = excluded.irish_vat_compliant,
				had_errors = excluded.had_errors,
				recovery_method = excluded.recovery_method,
				fallbacks_used = excluded.fallbacks_used,
				processed_at = excluded.processed_at
		`
		_, err := tx.Exec(query,
			result.DocumentID,
			string(salesVAT),
			string(purchaseVAT),
			result.TotalAmount,
			result.VATRate,
			result.Confidence,
			result.DocumentType,
			result.ProcessingMethod,
			string(flags),
			result.IrishVATCompliant,
			result.ErrorRecovery.HadErrors,
			result.ErrorRecovery.RecoveryMethod,
			string(fallbacks),
			result.ProcessedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save extraction result: %w", err)
		}

		if _, err := tx.Exec("DELETE FROM processing_steps WHERE document_id = ?", result.DocumentID); err != nil {
			return fmt.Errorf("failed to clear audit trail: %w", err)
		}

		stepQuery := `
			INSERT INTO processing_steps (document_id, step, success, duration_ms, detail, fallback_used, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		for _, step := range steps {
			_, err := tx.Exec(stepQuery,
				result.DocumentID,
				step.Step,
				step.Success,
				step.Duration.Milliseconds(),
				step.Detail,
				step.FallbackUsed,
				step.Timestamp,
			)
			if err != nil {
				return fmt.Errorf("failed to save processing step: %w", err)
			}
		}
		return nil
	})
}

// GetByDocumentID loads the stored result for a document
func (r *ResultRepository) GetByDocumentID(ctx context.Context, documentID string) (*entity.ExtractionResult, error) {
	query := `
		SELECT document_id, sales_vat, purchase_vat, total_amount, vat_rate,
			confidence, document_type, processing_method, validation_flags,
			irish_vat_compliant, had_errors, recovery_method, fallbacks_used,
			processed_at
		FROM extraction_results
		WHERE document_id = ?
	`

	var result entity.ExtractionResult
	var salesVAT, purchaseVAT, flags, fallbacks string
	err := r.db.QueryRowContext(ctx, query, documentID).Scan(
		&result.DocumentID,
		&salesVAT,
		&purchaseVAT,
		&result.TotalAmount,
		&result.VATRate,
		&result.Confidence,
		&result.DocumentType,
		&result.ProcessingMethod,
		&flags,
		&result.IrishVATCompliant,
		&result.ErrorRecovery.HadErrors,
		&result.ErrorRecovery.RecoveryMethod,
		&fallbacks,
		&result.ProcessedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result for document %s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get extraction result", zap.String("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to get extraction result: %w", err)
	}

	if err := json.Unmarshal([]byte(salesVAT), &result.SalesVAT); err != nil {
		return nil, fmt.Errorf("failed to decode sales vat: %w", err)
	}
	if err := json.Unmarshal([]byte(purchaseVAT), &result.PurchaseVAT); err != nil {
		return nil, fmt.Errorf("failed to decode purchase vat: %w", err)
	}
	if err := json.Unmarshal([]byte(flags), &result.ValidationFlags); err != nil {
		return nil, fmt.Errorf("failed to decode validation flags: %w", err)
	}
	if err := json.Unmarshal([]byte(fallbacks), &result.ErrorRecovery.FallbacksUsed); err != nil {
		return nil, fmt.Errorf("failed to decode fallbacks: %w", err)
	}
	return &result, nil
}

// GetSteps loads the audit trail for a document in recorded order
func (r *ResultRepository) GetSteps(ctx context.Context, documentID string) ([]entity.ProcessingStep, error) {
	query := `
		SELECT step, success, duration_ms, detail, fallback_used, timestamp
		FROM processing_steps
		WHERE document_id = ?
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		r.logger.Error("Failed to get processing steps", zap.String("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to get processing steps: %w", err)
	}
	defer rows.Close()

	var steps []entity.ProcessingStep
	for rows.Next() {
		var step entity.ProcessingStep
		var durationMS int64
		if err := rows.Scan(&step.Step, &step.Success, &durationMS, &step.Detail, &step.FallbackUsed, &step.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan processing step: %w", err)
		}
		step.Duration = time.Duration(durationMS) * time.Millisecond
		steps = append(steps, step)
	}
	return steps, rows.Err()
}
