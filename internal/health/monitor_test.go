package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/clearledger/vat-extract/internal/extractor"
)

func testConfig(ttl time.Duration) Config {
	cfg := DefaultConfig()
	cfg.TTL = ttl
	return cfg
}

func TestMonitorCachesProbeResults(t *testing.T) {
	var calls int32
	m := NewMonitor(testConfig(time.Minute), zap.NewNop())
	m.Register(extractor.CapabilityAI, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx := context.Background()
	assert.True(t, m.IsHealthy(ctx, extractor.CapabilityAI))
	assert.True(t, m.IsHealthy(ctx, extractor.CapabilityAI))
	assert.True(t, m.IsHealthy(ctx, extractor.CapabilityAI))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "probe should run once within TTL")
}

func TestMonitorRefreshesAfterTTL(t *testing.T) {
	var calls int32
	m := NewMonitor(testConfig(time.Nanosecond), zap.NewNop())
	m.Register(extractor.CapabilityOCR, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx := context.Background()
	m.IsHealthy(ctx, extractor.CapabilityOCR)
	time.Sleep(time.Millisecond)
	m.IsHealthy(ctx, extractor.CapabilityOCR)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMonitorProbeFailureResolvesToFalse(t *testing.T) {
	m := NewMonitor(testConfig(time.Minute), zap.NewNop())
	m.Register(extractor.CapabilityAI, func(ctx context.Context) error {
		return errors.New("connection refused")
	})

	assert.False(t, m.IsHealthy(context.Background(), extractor.CapabilityAI))
}

func TestMonitorProbePanicIsContained(t *testing.T) {
	m := NewMonitor(testConfig(time.Minute), zap.NewNop())
	m.Register(extractor.CapabilityAI, func(ctx context.Context) error {
		panic("probe blew up")
	})

	assert.NotPanics(t, func() {
		assert.False(t, m.IsHealthy(context.Background(), extractor.CapabilityAI))
	})
}

func TestMonitorUnregisteredCapabilityIsHealthy(t *testing.T) {
	m := NewMonitor(testConfig(time.Minute), zap.NewNop())
	assert.True(t, m.IsHealthy(context.Background(), extractor.CapabilityPlainText))
}

func TestMonitorBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls int32
	cfg := testConfig(time.Nanosecond)
	cfg.BreakerMinRequests = 2
	m := NewMonitor(cfg, zap.NewNop())
	m.Register(extractor.CapabilityOCR, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("down")
	})

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		assert.False(t, m.IsHealthy(ctx, extractor.CapabilityOCR))
		time.Sleep(time.Millisecond)
	}
	// Once the breaker is open the probe itself stops being invoked.
	assert.Less(t, atomic.LoadInt32(&calls), int32(6))
}

func TestMonitorServesStaleValueDuringRefresh(t *testing.T) {
	var calls int32
	probeBlocked := make(chan struct{})
	release := make(chan struct{})

	m := NewMonitor(testConfig(time.Millisecond), zap.NewNop())
	m.Register(extractor.CapabilityAI, func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil
		}
		close(probeBlocked)
		<-release
		return errors.New("down")
	})

	ctx := context.Background()
	assert.True(t, m.IsHealthy(ctx, extractor.CapabilityAI))
	time.Sleep(5 * time.Millisecond)

	refresherDone := make(chan bool, 1)
	go func() {
		refresherDone <- m.IsHealthy(ctx, extractor.CapabilityAI)
	}()
	<-probeBlocked

	// While the refresher is stuck in the probe, other readers must get the
	// stale value immediately instead of queueing behind it.
	readerDone := make(chan bool, 1)
	go func() {
		readerDone <- m.IsHealthy(ctx, extractor.CapabilityAI)
	}()
	select {
	case healthy := <-readerDone:
		assert.True(t, healthy, "stale value served during refresh")
	case <-time.After(500 * time.Millisecond):
		t.Fatal("reader blocked behind an in-flight probe")
	}

	close(release)
	assert.False(t, <-refresherDone, "refresher observes the new probe result")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "concurrent reader did not trigger a second refresh")
}

func TestSnapshot(t *testing.T) {
	m := NewMonitor(testConfig(time.Minute), zap.NewNop())
	m.Register(extractor.CapabilityAI, func(ctx context.Context) error { return nil })
	m.Register(extractor.CapabilityOCR, func(ctx context.Context) error { return errors.New("down") })

	snap := m.Snapshot(context.Background())
	assert.Equal(t, map[extractor.Capability]bool{
		extractor.CapabilityAI:  true,
		extractor.CapabilityOCR: false,
	}, snap)
}
