// Package health tracks per-capability liveness so the orchestrator can
// skip known-down services without paying their timeout cost. Probe results
// are cached with a short TTL and guarded by a circuit breaker; a probe
// failure never propagates, it resolves to unhealthy.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/clearledger/vat-extract/internal/extractor"
)

// Probe is a lightweight liveness call for one capability. It must be cheap
// enough to run on a seconds-scale cadence.
type Probe func(ctx context.Context) error

// Config tunes the monitor's cache and breaker behaviour.
type Config struct {
	TTL                time.Duration
	ProbeTimeout       time.Duration
	BreakerMinRequests uint32
	BreakerFailureRate float64
	BreakerOpenTimeout time.Duration
}

// DefaultConfig returns the monitor defaults: 10s cache, 3s probe budget,
// breaker opens after half of 4+ probes fail and stays open for 30s.
func DefaultConfig() Config {
	return Config{
		TTL:                10 * time.Second,
		ProbeTimeout:       3 * time.Second,
		BreakerMinRequests: 4,
		BreakerFailureRate: 0.5,
		BreakerOpenTimeout: 30 * time.Second,
	}
}

type capabilityHealth struct {
	probe   Probe
	breaker *gobreaker.CircuitBreaker[any]

	mu         sync.Mutex
	cond       *sync.Cond
	refreshing bool
	healthy    bool
	checkedAt  time.Time
}

// Monitor caches per-capability liveness. Reads are cheap and concurrent;
// TTL-triggered refreshes are last-writer-wins, which is acceptable because
// staleness of a few seconds is tolerable here.
type Monitor struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[extractor.Capability]*capabilityHealth
}

// NewMonitor creates a monitor with no registered probes.
func NewMonitor(cfg Config, logger *zap.Logger) *Monitor {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultConfig().ProbeTimeout
	}
	return &Monitor{
		cfg:     cfg,
		logger:  logger,
		entries: make(map[extractor.Capability]*capabilityHealth),
	}
}

// Register attaches a probe to a capability. Capabilities without a
// registered probe have no external dependency and always report healthy.
func (m *Monitor) Register(cap extractor.Capability, probe Probe) {
	def := DefaultConfig()
	minRequests := m.cfg.BreakerMinRequests
	if minRequests == 0 {
		minRequests = def.BreakerMinRequests
	}
	failureRate := m.cfg.BreakerFailureRate
	if failureRate <= 0 || failureRate > 1 {
		failureRate = def.BreakerFailureRate
	}
	openTimeout := m.cfg.BreakerOpenTimeout
	if openTimeout <= 0 {
		openTimeout = def.BreakerOpenTimeout
	}

	logger := m.logger
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    string(cap),
		Timeout: openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= failureRate
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Capability breaker state change",
				zap.String("capability", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	entry := &capabilityHealth{probe: probe, breaker: breaker}
	entry.cond = sync.NewCond(&entry.mu)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[cap] = entry
}

// IsHealthy reports cached liveness for a capability, refreshing the cache
// when the TTL has lapsed. It never returns an error: a failed or
// circuit-open probe is simply unhealthy. A lapsed entry is refreshed by one
// caller while concurrent readers keep getting the previous value; only the
// first check of a capability ever waits on a probe it did not start.
func (m *Monitor) IsHealthy(ctx context.Context, cap extractor.Capability) bool {
	m.mu.RLock()
	entry, ok := m.entries[cap]
	m.mu.RUnlock()
	if !ok {
		return true
	}

	entry.mu.Lock()
	if !entry.checkedAt.IsZero() && time.Since(entry.checkedAt) < m.cfg.TTL {
		healthy := entry.healthy
		entry.mu.Unlock()
		return healthy
	}
	if entry.refreshing {
		if !entry.checkedAt.IsZero() {
			// Stale but being refreshed elsewhere: serve the old value
			// rather than queue behind the probe.
			healthy := entry.healthy
			entry.mu.Unlock()
			return healthy
		}
		// No value yet to fall back on; wait for the first probe.
		for entry.refreshing {
			entry.cond.Wait()
		}
		healthy := entry.healthy
		entry.mu.Unlock()
		return healthy
	}
	entry.refreshing = true
	entry.mu.Unlock()

	healthy := m.runProbe(ctx, cap, entry)

	entry.mu.Lock()
	entry.healthy = healthy
	entry.checkedAt = time.Now()
	entry.refreshing = false
	entry.cond.Broadcast()
	entry.mu.Unlock()
	return healthy
}

// Snapshot returns the current liveness of every registered capability,
// refreshing stale entries. Used by the health endpoint.
func (m *Monitor) Snapshot(ctx context.Context) map[extractor.Capability]bool {
	m.mu.RLock()
	caps := make([]extractor.Capability, 0, len(m.entries))
	for cap := range m.entries {
		caps = append(caps, cap)
	}
	m.mu.RUnlock()

	out := make(map[extractor.Capability]bool, len(caps))
	for _, cap := range caps {
		out[cap] = m.IsHealthy(ctx, cap)
	}
	return out
}

func (m *Monitor) runProbe(ctx context.Context, cap extractor.Capability, entry *capabilityHealth) (healthy bool) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	// A probe must never take the pipeline down with it.
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Capability probe panicked",
				zap.String("capability", string(cap)),
				zap.Any("panic", r))
			healthy = false
		}
	}()

	_, err := entry.breaker.Execute(func() (any, error) {
		return nil, entry.probe(probeCtx)
	})
	if err != nil {
		m.logger.Debug("Capability probe failed",
			zap.String("capability", string(cap)),
			zap.Error(err))
		return false
	}
	return true
}
