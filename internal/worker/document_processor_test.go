package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clearledger/vat-extract/internal/domain/entity"
)

type stubService struct {
	mu        sync.Mutex
	pending   []*entity.Document
	processed []string
	failOn    map[string]error
}

func (s *stubService) PendingDocuments(ctx context.Context, limit int) ([]*entity.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.pending) {
		limit = len(s.pending)
	}
	batch := s.pending[:limit]
	s.pending = s.pending[limit:]
	return batch, nil
}

func (s *stubService) Process(ctx context.Context, documentID string, force bool) (*entity.ExtractionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failOn[documentID]; ok {
		return nil, err
	}
	s.processed = append(s.processed, documentID)
	return &entity.ExtractionResult{
		DocumentID:       documentID,
		ProcessingMethod: entity.MethodPrimaryAI,
		Confidence:       0.9,
	}, nil
}

func pendingDocs(ids ...string) []*entity.Document {
	docs := make([]*entity.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, &entity.Document{ID: id, Status: entity.StatusUploaded})
	}
	return docs
}

func TestProcessNowDrainsBatch(t *testing.T) {
	svc := &stubService{pending: pendingDocs("a", "b", "c")}
	p := NewDocumentProcessor(svc, time.Second, 10, 2, zap.NewNop())

	require.NoError(t, p.ProcessNow())

	assert.ElementsMatch(t, []string{"a", "b", "c"}, svc.processed)
	assert.Equal(t, 3, p.GetStatus().ProcessedCount)
	assert.Zero(t, p.GetStatus().FailedCount)
}

func TestProcessNowCountsFailures(t *testing.T) {
	svc := &stubService{
		pending: pendingDocs("ok", "broken"),
		failOn:  map[string]error{"broken": errors.New("storage failure")},
	}
	p := NewDocumentProcessor(svc, time.Second, 10, 1, zap.NewNop())

	require.NoError(t, p.ProcessNow())

	status := p.GetStatus()
	assert.Equal(t, 1, status.ProcessedCount)
	assert.Equal(t, 1, status.FailedCount)
	assert.Error(t, status.LastError)
}

func TestProcessNowRespectsBatchSize(t *testing.T) {
	svc := &stubService{pending: pendingDocs("a", "b", "c")}
	p := NewDocumentProcessor(svc, time.Second, 2, 1, zap.NewNop())

	require.NoError(t, p.ProcessNow())
	assert.Len(t, svc.processed, 2)

	require.NoError(t, p.ProcessNow())
	assert.Len(t, svc.processed, 3)
}

func TestStartStopLifecycle(t *testing.T) {
	svc := &stubService{}
	p := NewDocumentProcessor(svc, 10*time.Millisecond, 1, 1, zap.NewNop())

	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()), "double start rejected")
	assert.True(t, p.GetStatus().IsRunning)

	p.Stop()
	assert.False(t, p.GetStatus().IsRunning)
	p.Stop() // idempotent
}

type scriptedWorker struct {
	name     string
	startErr error
	started  bool
	stopped  bool
}

func (w *scriptedWorker) Start(ctx context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}
	w.started = true
	return nil
}
func (w *scriptedWorker) Stop()        { w.stopped = true }
func (w *scriptedWorker) Name() string { return w.name }

func TestManagerStartsAndStopsWorkers(t *testing.T) {
	m := NewManager(zap.NewNop())
	p := NewDocumentProcessor(&stubService{}, time.Second, 1, 1, zap.NewNop())
	m.Register(p)

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, p.GetStatus().IsRunning)

	m.StopAll()
	assert.False(t, p.GetStatus().IsRunning)
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	m := NewManager(zap.NewNop())
	first := &scriptedWorker{name: "first"}
	broken := &scriptedWorker{name: "broken", startErr: errors.New("no database")}
	m.Register(first)
	m.Register(broken)

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.True(t, first.started)
	assert.True(t, first.stopped, "already-started workers are stopped on failure")
	assert.False(t, broken.stopped)
}
