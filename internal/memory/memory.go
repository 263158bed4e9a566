package memory

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"media-conversions/internal/logging"
	"media-conversions/internal/metrics"
)

// ErrStopped is returned by Wait once the monitor has been stopped.
var ErrStopped = errors.New("memory monitor stopped")

// Config holds the monitor thresholds as fractions of the limit.
type Config struct {
	// LimitBytes overrides the runtime soft limit when non-zero.
	LimitBytes int64
	// ResumeAt is the usage below which paused work resumes.
	ResumeAt float64
	// PauseAt is the usage at which new work is held back.
	PauseAt       float64
	CheckInterval time.Duration
}

// DefaultConfig returns the thresholds used by the server.
func DefaultConfig() Config {
	return Config{
		ResumeAt:      0.70,
		PauseAt:       0.85,
		CheckInterval: 2 * time.Second,
	}
}

// Monitor samples heap usage and holds back queued conversions while it
// is above the pause threshold. A Monitor without a limit never pauses.
type Monitor struct {
	cfg   Config
	limit int64
	alloc func() uint64

	mu      sync.Mutex
	current uint64
	paused  bool
	resume  chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a monitor for limit bytes. A zero limit falls back to
// cfg.LimitBytes.
func NewMonitor(cfg Config, limit int64) *Monitor {
	if cfg.LimitBytes > 0 {
		limit = cfg.LimitBytes
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultConfig().CheckInterval
	}
	if limit <= 0 {
		logging.Warn("Memory monitor has no limit, conversion backpressure disabled")
	}
	return &Monitor{
		cfg:    cfg,
		limit:  limit,
		alloc:  heapAlloc,
		resume: make(chan struct{}),
		stop:   make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}

// Start samples usage every CheckInterval until Stop.
func (m *Monitor) Start() {
	if m.limit <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(m.cfg.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.check()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends sampling and releases every waiter with ErrStopped.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Monitor) check() {
	current := m.alloc()
	usage := float64(current) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = current

	switch {
	case !m.paused && usage >= m.cfg.PauseAt:
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryGCPauses.Inc()
		logging.Warn("Memory at %.1f%% of %s, holding back conversions", usage*100, formatBytes(m.limit))
		go runtime.GC()
	case m.paused && usage < m.cfg.ResumeAt:
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resume)
		m.resume = make(chan struct{})
		logging.Info("Memory at %.1f%% of %s, resuming conversions", usage*100, formatBytes(m.limit))
	}
}

// Wait returns immediately unless the monitor is paused, in which case it
// blocks until usage recovers, ctx ends or the monitor stops.
func (m *Monitor) Wait(ctx context.Context) error {
	select {
	case <-m.stop:
		return ErrStopped
	default:
	}

	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		return nil
	}
	resume := m.resume
	m.mu.Unlock()

	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stop:
		return ErrStopped
	}
}

// Paused reports whether new work is being held back.
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Usage returns the last sampled usage as a fraction of the limit.
func (m *Monitor) Usage() float64 {
	if m.limit <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.current) / float64(m.limit)
}
