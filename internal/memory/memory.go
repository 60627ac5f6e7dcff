package memory

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bpepple/clu-comics-sub000/internal/logging"
	"github.com/bpepple/clu-comics-sub000/internal/metrics"
)

const bytesPerMB = 1024 * 1024

// Config holds memory monitor configuration.
type Config struct {
	// LimitBytes is the soft memory limit (0 = use GOMEMLIMIT or no limit)
	LimitBytes int64

	// PressureMark is the fraction of the limit at which OnPressure fires (0.0-1.0)
	PressureMark float64

	// CheckInterval is how often to sample memory usage
	CheckInterval time.Duration
}

// DefaultConfig returns sensible defaults for the memory monitor.
func DefaultConfig() Config {
	return Config{
		LimitBytes:    0, // Use GOMEMLIMIT if set
		PressureMark:  0.8,
		CheckInterval: 5 * time.Second,
	}
}

// Monitor samples heap usage and signals memory pressure to consumers that
// hold large in-process state (the directory listing cache).
type Monitor struct {
	config   Config
	limit    int64
	stopChan chan struct{}
	stopOnce sync.Once

	mu         sync.RWMutex
	current    uint64
	onPressure func()
	firing     bool
}

// NewMonitor creates a new memory monitor. The onPressure callback is invoked
// once per crossing of the pressure mark, from the monitor goroutine.
func NewMonitor(config Config, onPressure func()) *Monitor {
	limit := config.LimitBytes

	// If no explicit limit, try to get GOMEMLIMIT
	if limit == 0 {
		if goMemLimit := debug.SetMemoryLimit(-1); goMemLimit > 0 && goMemLimit < 1<<62 {
			limit = goMemLimit
			logging.Info("Memory monitor using GOMEMLIMIT: %d bytes (%.1f MB)", limit, float64(limit)/bytesPerMB)
		}
	}

	if limit == 0 {
		logging.Warn("Memory monitor: no memory limit configured, pressure signals disabled")
	}

	return &Monitor{
		config:     config,
		limit:      limit,
		stopChan:   make(chan struct{}),
		onPressure: onPressure,
	}
}

// Start begins sampling memory usage in a background goroutine.
func (m *Monitor) Start() {
	go m.monitorLoop()
}

// Stop stops the memory monitor. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *Monitor) monitorLoop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkMemory()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Monitor) checkMemory() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	metrics.MemoryUsageMB.Set(float64(stats.Alloc) / bytesPerMB)

	m.mu.Lock()
	m.current = stats.Alloc

	var fire func()
	if m.limit > 0 {
		usage := float64(stats.Alloc) / float64(m.limit)
		if usage >= m.config.PressureMark {
			if !m.firing {
				logging.Warn("Memory pressure (%.1f%% of limit), signaling consumers", usage*100)
				m.firing = true
				fire = m.onPressure
			}
		} else {
			m.firing = false
		}
	}
	m.mu.Unlock()

	if fire != nil {
		metrics.MemoryShrinksTotal.Inc()
		fire()
	}
}

// CurrentUsageMB returns the most recently sampled heap allocation in
// megabytes. Before the first sample it reads the runtime directly.
func (m *Monitor) CurrentUsageMB() float64 {
	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()

	if current == 0 {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		current = stats.Alloc
	}
	return float64(current) / bytesPerMB
}

// AboveThreshold reports whether the last sample is above the pressure mark.
// Returns false when no limit is configured.
func (m *Monitor) AboveThreshold() bool {
	if m.limit == 0 {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return float64(m.current) >= float64(m.limit)*m.config.PressureMark
}

// LimitMB returns the configured limit in megabytes, 0 if none.
func (m *Monitor) LimitMB() float64 {
	return float64(m.limit) / bytesPerMB
}
