package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clearledger/vat-extract/internal/domain/entity"
	"github.com/clearledger/vat-extract/internal/health"
	"github.com/clearledger/vat-extract/internal/pipeline"
	"github.com/clearledger/vat-extract/internal/repository"
	"github.com/clearledger/vat-extract/internal/services"
	"github.com/clearledger/vat-extract/pkg/utils"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	processing    *services.ProcessingService
	monitor       *health.Monitor
	maxUploadSize int64
	logger        *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(processing *services.ProcessingService, monitor *health.Monitor, maxUploadSize int64, logger *zap.Logger) *Handlers {
	return &Handlers{
		processing:    processing,
		monitor:       monitor,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string          `json:"status"`
	Timestamp    string          `json:"timestamp"`
	Capabilities map[string]bool `json:"capabilities"`
}

// UploadResponse represents a stored document in API responses
type UploadResponse struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	Category   string `json:"category"`
	Status     string `json:"status"`
	Supported  bool   `json:"supported"`
	UploadedAt string `json:"uploaded_at"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	snapshot := h.monitor.Snapshot(c.Request.Context())
	capabilities := make(map[string]bool, len(snapshot))
	for cap, healthy := range snapshot {
		capabilities[string(cap)] = healthy
	}

	// The service itself is healthy as long as it can answer: degraded
	// capabilities are reported, not treated as an outage.
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:       "healthy",
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
			Capabilities: capabilities,
		},
	})
}

// UploadDocument handles POST /api/documents. The document is stored and
// queued; the background worker runs the pipeline.
func (h *Handlers) UploadDocument(c *gin.Context) {
	category := c.PostForm("category")
	if category == "" {
		category = entity.CategoryOther
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "file is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "failed to open uploaded file"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "failed to read uploaded file"})
		return
	}

	fileName := utils.SanitizeString(fileHeader.Filename)
	if err := utils.ValidateUpload(fileName, content, h.maxUploadSize); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	mimeType := utils.DetectMimeType(fileHeader.Header.Get("Content-Type"), content)

	doc, err := h.processing.Upload(c.Request.Context(), fileName, mimeType, category, content)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCategory) {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
			return
		}
		h.logger.Error("Failed to store upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to store document"})
		return
	}

	c.JSON(http.StatusAccepted, Response{
		Success: true,
		Data: UploadResponse{
			DocumentID: doc.ID,
			FileName:   doc.FileName,
			MimeType:   doc.MimeType,
			Category:   doc.Category,
			Status:     doc.Status,
			Supported:  utils.IsSupportedMimeType(doc.MimeType),
			UploadedAt: doc.UploadedAt.Format(time.RFC3339),
		},
	})
}

// ProcessDocument handles POST /api/documents/:id/process. It runs the
// pipeline synchronously; force=true reprocesses a document that already has
// a result.
func (h *Handlers) ProcessDocument(c *gin.Context) {
	id := c.Param("id")
	force := c.Query("force") == "true"

	result, err := h.processing.Process(c.Request.Context(), id, force)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, Response{Success: false, Error: "document not found"})
			return
		}
		if pipeline.IsCancellation(err) {
			c.JSON(http.StatusRequestTimeout, Response{Success: false, Error: "request cancelled"})
			return
		}
		h.logger.Error("Failed to process document", zap.String("document_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to process document"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// GetResult handles GET /api/documents/:id/result
func (h *Handlers) GetResult(c *gin.Context) {
	id := c.Param("id")

	result, err := h.processing.GetResult(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, Response{Success: false, Error: "no result for document"})
			return
		}
		h.logger.Error("Failed to get result", zap.String("document_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to retrieve result"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// GetAuditTrail handles GET /api/documents/:id/audit
func (h *Handlers) GetAuditTrail(c *gin.Context) {
	id := c.Param("id")

	steps, err := h.processing.GetAuditTrail(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, Response{Success: false, Error: "document not found"})
			return
		}
		h.logger.Error("Failed to get audit trail", zap.String("document_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to retrieve audit trail"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: steps})
}
