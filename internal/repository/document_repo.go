package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/clearledger/vat-extract/internal/domain/entity"
	"github.com/clearledger/vat-extract/pkg/database"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// DocumentRepository handles document database operations
type DocumentRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *database.DB, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *entity.Document) error {
	query := `
		INSERT INTO documents (id, file_name, mime_type, category, content, status, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		doc.ID,
		doc.FileName,
		doc.MimeType,
		doc.Category,
		doc.Content,
		doc.Status,
		doc.UploadedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create document", zap.String("document_id", doc.ID), zap.Error(err))
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByID loads one document with its content
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	query := `
		SELECT id, file_name, mime_type, category, content, status, uploaded_at
		FROM documents
		WHERE id = ?
	`

	var doc entity.Document
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID,
		&doc.FileName,
		&doc.MimeType,
		&doc.Category,
		&doc.Content,
		&doc.Status,
		&doc.UploadedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get document", zap.String("document_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// ListByStatus returns up to limit documents in the given status, oldest
// first. Content is included so the caller can process without a second read.
func (r *DocumentRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*entity.Document, error) {
	query := `
		SELECT id, file_name, mime_type, category, content, status, uploaded_at
		FROM documents
		WHERE status = ?
		ORDER BY uploaded_at
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		r.logger.Error("Failed to list documents", zap.String("status", status), zap.Error(err))
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*entity.Document
	for rows.Next() {
		var doc entity.Document
		if err := rows.Scan(&doc.ID, &doc.FileName, &doc.MimeType, &doc.Category, &doc.Content, &doc.Status, &doc.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// UpdateStatus moves a document to a new processing status
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id, status string) error {
	result, err := r.db.ExecContext(ctx, "UPDATE documents SET status = ? WHERE id = ?", status, id)
	if err != nil {
		r.logger.Error("Failed to update document status",
			zap.String("document_id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update document status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}
