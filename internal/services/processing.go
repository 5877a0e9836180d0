// Package services ties the storage layer to the extraction pipeline: it
// owns document intake, the reprocess entrypoint and result retrieval.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearledger/vat-extract/internal/domain/entity"
	"github.com/clearledger/vat-extract/internal/pipeline"
	"github.com/clearledger/vat-extract/internal/repository"
)

// ErrInvalidCategory is returned when an upload names an unknown category.
var ErrInvalidCategory = errors.New("invalid document category")

// ProcessingService drives documents through the pipeline and persists the
// outcome.
type ProcessingService struct {
	documents    *repository.DocumentRepository
	results      *repository.ResultRepository
	orchestrator *pipeline.Orchestrator
	logger       *zap.Logger
}

// NewProcessingService creates a new processing service
func NewProcessingService(
	documents *repository.DocumentRepository,
	results *repository.ResultRepository,
	orchestrator *pipeline.Orchestrator,
	logger *zap.Logger,
) *ProcessingService {
	return &ProcessingService{
		documents:    documents,
		results:      results,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// Upload validates and stores an incoming document. Processing happens
// asynchronously; the returned document carries the generated ID the caller
// polls with.
func (s *ProcessingService) Upload(ctx context.Context, fileName, mimeType, category string, content []byte) (*entity.Document, error) {
	if !entity.IsValidCategory(category) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCategory, category)
	}

	doc := &entity.Document{
		ID:         uuid.NewString(),
		FileName:   fileName,
		MimeType:   mimeType,
		Category:   category,
		Content:    content,
		Status:     entity.StatusUploaded,
		UploadedAt: time.Now().UTC(),
	}

	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("Document uploaded",
		zap.String("document_id", doc.ID),
		zap.String("file_name", fileName),
		zap.String("category", category),
		zap.Int("size_bytes", len(content)))
	return doc, nil
}

// Process runs the pipeline for one document and stores the outcome. When the
// document already has a result and force is false, the stored result is
// returned without re-running the pipeline. With force, the previous result
// is overwritten.
func (s *ProcessingService) Process(ctx context.Context, documentID string, force bool) (*entity.ExtractionResult, error) {
	if !force {
		if existing, err := s.results.GetByDocumentID(ctx, documentID); err == nil {
			return existing, nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if err := s.documents.UpdateStatus(ctx, doc.ID, entity.StatusProcessing); err != nil {
		return nil, err
	}

	result, steps, err := s.orchestrator.Process(ctx, doc)
	if err != nil {
		// Only caller cancellation reaches here. Put the document back in the
		// queue so the next run picks it up.
		if stErr := s.documents.UpdateStatus(context.WithoutCancel(ctx), doc.ID, entity.StatusUploaded); stErr != nil {
			s.logger.Warn("Failed to reset document status after cancellation",
				zap.String("document_id", doc.ID), zap.Error(stErr))
		}
		return nil, err
	}

	if err := s.results.Save(ctx, result, steps); err != nil {
		return nil, err
	}
	if err := s.documents.UpdateStatus(ctx, doc.ID, entity.StatusProcessed); err != nil {
		return nil, err
	}

	return result, nil
}

// GetResult returns the stored result for a document.
func (s *ProcessingService) GetResult(ctx context.Context, documentID string) (*entity.ExtractionResult, error) {
	return s.results.GetByDocumentID(ctx, documentID)
}

// GetAuditTrail returns the stored processing steps for a document.
func (s *ProcessingService) GetAuditTrail(ctx context.Context, documentID string) ([]entity.ProcessingStep, error) {
	if _, err := s.documents.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.results.GetSteps(ctx, documentID)
}

// PendingDocuments returns uploaded documents awaiting processing.
func (s *ProcessingService) PendingDocuments(ctx context.Context, limit int) ([]*entity.Document, error) {
	return s.documents.ListByStatus(ctx, entity.StatusUploaded, limit)
}
