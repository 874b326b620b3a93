package memory

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"video-reducer/internal/logging"
	"video-reducer/internal/metrics"
)

// ErrStopped is returned by Wait when the monitor stops while memory is
// still critical.
var ErrStopped = errors.New("memory monitor stopped")

// Config configures a Monitor.
type Config struct {
	// LimitBytes is the soft limit to measure against (0 = GOMEMLIMIT).
	LimitBytes int64
	// HighWaterMark is the usage ratio below which a paused monitor resumes.
	HighWaterMark float64
	// CriticalWaterMark is the usage ratio at which new reductions wait.
	CriticalWaterMark float64
	// CheckInterval is how often usage is sampled.
	CheckInterval time.Duration
}

// DefaultConfig returns the thresholds used by the service.
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     2 * time.Second,
	}
}

// Monitor samples heap usage and holds back new reductions while it is
// critical. Reductions already running are never interrupted.
type Monitor struct {
	config Config
	limit  int64
	sample func() uint64

	mu      sync.RWMutex
	current uint64
	paused  bool
	resume  chan struct{} // closed when a pause ends

	stop chan struct{}
	done chan struct{}
}

// NewMonitor creates a monitor. Without a limit it never pauses.
func NewMonitor(config Config) *Monitor {
	limit := config.LimitBytes
	if limit == 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l < 1<<62 {
			limit = l
		}
	}
	if limit == 0 {
		logging.Warn("Memory monitor: no memory limit configured, backpressure disabled")
	}

	return &Monitor{
		config: config,
		limit:  limit,
		sample: heapAlloc,
		resume: make(chan struct{}),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}

// Start begins sampling. It is a no-op without a limit.
func (m *Monitor) Start() {
	if m.limit == 0 {
		close(m.done)
		return
	}
	go m.loop()
}

// Stop ends sampling. Waiters return ErrStopped.
func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
}

func (m *Monitor) loop() {
	defer close(m.done)

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) check() {
	alloc := m.sample()
	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = alloc

	switch {
	case !m.paused && usage >= m.config.CriticalWaterMark:
		logging.Warn("Memory critical (%.1f%% of limit), holding new reductions", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryPausesTotal.Inc()
		go runtime.GC()

	case m.paused && usage < m.config.HighWaterMark:
		logging.Info("Memory recovered (%.1f%% of limit), resuming reductions", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resume)
		m.resume = make(chan struct{})
	}
}

// Wait blocks while memory is critical. It returns nil once it is safe to
// start a reduction, ctx.Err() if ctx ends first and ErrStopped if the
// monitor stops.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.RLock()
	if !m.paused {
		m.mu.RUnlock()
		return nil
	}
	resume := m.resume
	m.mu.RUnlock()

	select {
	case <-resume:
		return nil
	case <-m.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Paused reports whether new reductions are being held.
func (m *Monitor) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// Usage returns the last sampled heap size as a share of the limit, or 0
// without a limit.
func (m *Monitor) Usage() float64 {
	if m.limit == 0 {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return float64(m.current) / float64(m.limit)
}

// Limit returns the limit the monitor measures against.
func (m *Monitor) Limit() int64 {
	return m.limit
}
