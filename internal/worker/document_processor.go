package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clearledger/vat-extract/internal/domain/entity"
	"github.com/clearledger/vat-extract/internal/pipeline"
)

// ProcessingService defines the service contract the processor drives.
type ProcessingService interface {
	PendingDocuments(ctx context.Context, limit int) ([]*entity.Document, error)
	Process(ctx context.Context, documentID string, force bool) (*entity.ExtractionResult, error)
}

// DocumentProcessorStatus reports current processor status
type DocumentProcessorStatus struct {
	IsRunning      bool
	LastPolled     time.Time
	ProcessedCount int
	FailedCount    int
	LastError      error
}

// DocumentProcessor polls for uploaded documents and runs them through the
// extraction pipeline. Pipeline degradation means a processed document is
// almost never a failure; the failed counter only moves on storage errors or
// shutdown cancellations.
type DocumentProcessor struct {
	pollInterval time.Duration
	batchSize    int
	concurrency  int

	service ProcessingService
	logger  *zap.Logger

	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	isRunning      bool
	lastPolled     time.Time
	processedCount int
	failedCount    int
	lastError      error
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(service ProcessingService, pollInterval time.Duration, batchSize, concurrency int, logger *zap.Logger) *DocumentProcessor {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 4
	}
	if concurrency <= 0 {
		concurrency = 2
	}
	return &DocumentProcessor{
		pollInterval: pollInterval,
		batchSize:    batchSize,
		concurrency:  concurrency,
		service:      service,
		logger:       logger,
	}
}

// Name returns the worker name
func (p *DocumentProcessor) Name() string {
	return "document-processor"
}

// Start begins the polling loop
func (p *DocumentProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return fmt.Errorf("processor already running")
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.isRunning = true
	p.mu.Unlock()

	p.logger.Info("DocumentProcessor started",
		zap.Duration("poll_interval", p.pollInterval),
		zap.Int("batch_size", p.batchSize),
		zap.Int("concurrency", p.concurrency))

	p.wg.Add(1)
	go p.pollLoop()
	return nil
}

// Stop terminates the polling loop and waits for in-flight documents
func (p *DocumentProcessor) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.logger.Info("DocumentProcessor stopped",
		zap.Int("processed_count", p.processedCount),
		zap.Int("failed_count", p.failedCount))
}

// GetStatus returns current processor status
func (p *DocumentProcessor) GetStatus() DocumentProcessorStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return DocumentProcessorStatus{
		IsRunning:      p.isRunning,
		LastPolled:     p.lastPolled,
		ProcessedCount: p.processedCount,
		FailedCount:    p.failedCount,
		LastError:      p.lastError,
	}
}

func (p *DocumentProcessor) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if err := p.processBatch(); err != nil {
				p.mu.Lock()
				p.lastError = err
				p.mu.Unlock()
				p.logger.Error("Failed to process batch", zap.Error(err))
			}
			p.mu.Lock()
			p.lastPolled = time.Now()
			p.mu.Unlock()
		}
	}
}

// processBatch drains one batch of pending documents through a bounded set
// of workers.
func (p *DocumentProcessor) processBatch() error {
	ctx := p.runContext()
	docs, err := p.service.PendingDocuments(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list pending documents: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}

	p.logger.Debug("Processing pending documents", zap.Int("count", len(docs)))

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, doc := range docs {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			p.processOne(ctx, id)
		}(doc.ID)
	}
	wg.Wait()
	return nil
}

// runContext returns the loop context, or Background before Start (tests use
// ProcessNow without starting the loop).
func (p *DocumentProcessor) runContext() context.Context {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.ctx != nil {
		return p.ctx
	}
	return context.Background()
}

func (p *DocumentProcessor) processOne(ctx context.Context, id string) {
	result, err := p.service.Process(ctx, id, true)
	if err != nil {
		p.mu.Lock()
		p.failedCount++
		p.lastError = err
		p.mu.Unlock()
		if pipeline.IsCancellation(err) {
			p.logger.Debug("Processing cancelled by shutdown", zap.String("document_id", id))
			return
		}
		p.logger.Warn("Failed to process document", zap.String("document_id", id), zap.Error(err))
		return
	}

	p.mu.Lock()
	p.processedCount++
	p.mu.Unlock()

	p.logger.Info("Document processed by worker",
		zap.String("document_id", id),
		zap.String("method", result.ProcessingMethod),
		zap.Float64("confidence", result.Confidence))
}

// ProcessNow drains one batch immediately (for testing)
func (p *DocumentProcessor) ProcessNow() error {
	return p.processBatch()
}

// SetPollInterval sets the polling interval (for testing)
func (p *DocumentProcessor) SetPollInterval(interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pollInterval = interval
}
