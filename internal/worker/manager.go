package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Worker is a background component whose lifetime is tied to the server's.
type Worker interface {
	Start(ctx context.Context) error
	Stop()
	Name() string
}

// Manager owns worker lifecycles. Workers start in registration order and
// stop in reverse; a start failure rolls back the workers already running so
// the caller never inherits a half-started set.
type Manager struct {
	mu      sync.Mutex
	workers []Worker
	running int
	logger  *zap.Logger
}

// NewManager creates an empty worker manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

// Register adds a worker. Registration after StartAll is not supported.
func (m *Manager) Register(w Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = append(m.workers, w)
}

// StartAll starts every registered worker, stopping the already-started ones
// if any start fails.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.workers {
		if err := w.Start(ctx); err != nil {
			m.logger.Error("Failed to start worker",
				zap.String("name", w.Name()),
				zap.Error(err))
			m.stopRunning()
			return fmt.Errorf("failed to start worker %s: %w", w.Name(), err)
		}
		m.running++
		m.logger.Info("Worker started", zap.String("name", w.Name()))
	}
	return nil
}

// StopAll stops all running workers in reverse start order.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopRunning()
}

func (m *Manager) stopRunning() {
	for i := m.running - 1; i >= 0; i-- {
		w := m.workers[i]
		w.Stop()
		m.logger.Info("Worker stopped", zap.String("name", w.Name()))
	}
	m.running = 0
}
